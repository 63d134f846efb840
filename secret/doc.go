// Package secret resolves configuration values that reference secrets, such
// as the agent's private signing key.
//
// A value is first expanded with ExpandEnvStrict. If the result is a secret
// reference it is handed to the named Provider:
//
//	secretref:file:/etc/agent/key.jwk
//	secretref:env:AGENT_SIGNING_KEY
//	secretref:age:/etc/agent/key.jwk.age
//
// References may also appear inline, e.g. "Bearer secretref:env:TOKEN".
// Providers never log resolved values.
package secret
