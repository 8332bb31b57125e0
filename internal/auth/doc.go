// Package auth authenticates API clients.
//
// Users are declared in the configuration file with an Argon2id password
// hash in PHC string format (`rrdcore hash-password` prints one). A
// successful login yields a short-lived HS256 JWT whose subject is the
// username and whose jti is a random UUID. Tokens are validated by
// signature and expiry alone; there is no server-side session state.
package auth
