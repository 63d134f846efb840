// Package cache memoizes access tokens by (audience, scope set).
//
// A TokenCache serves repeated requests for the same permissions without a
// new exchange until the token nears expiry. Scope lists are normalized
// before keying, so {read,write} and {write,read} share one entry. At most
// one exchange per key is in flight; concurrent callers wait for it.
package cache
