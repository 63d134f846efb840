// Package replay tracks consumed one-time token identifiers (jti) so that a
// token accepted once cannot be accepted again while it is still valid.
//
// Records are keyed only by jti, never by principal: identifiers are expected
// to be globally unique per issuance. A record is kept until the expiry of the
// token that carried it; after that point the token fails expiry validation on
// its own, so the record can be swept without weakening the guarantee.
//
// Guard keeps records in memory and forgets them on restart. SQLiteGuard
// persists them in a SQLite database so a restarted verifier, or several
// processes sharing one file, still refuse a replayed token.
package replay
