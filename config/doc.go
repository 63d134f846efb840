// Package config loads agentauth configuration.
//
// Files are YAML, or TOML when the name ends in ".toml". ${VAR} references
// are expanded strictly before decoding, AGENTAUTH_* environment variables
// override file values, and Validate rejects incomplete security settings
// before anything is built.
//
// Values may be secret references of the form secretref:<provider>:<ref>.
// They are resolved by a secret.Resolver built from the secrets section.
package config
