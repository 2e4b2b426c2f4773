// Package auth issues and verifies bearer tokens.
//
// Tokens are HS256 JWTs whose subject is a user ID. The API accepts them in
// the Authorization header; the live channel takes them from the token
// query parameter because browsers cannot set headers on a WebSocket
// handshake. Verification is by signature and expiry only.
package auth
