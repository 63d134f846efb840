// Package exchange turns an agent's key material into scoped access tokens.
//
// A Signer builds a short-lived self-issued assertion (iss == sub == agent)
// signed with the agent's Ed25519 key. A Client presents that assertion to
// the Token Service and returns the access token it issues. The Client makes
// exactly one attempt per call; retry and caching policy belong to callers.
package exchange
