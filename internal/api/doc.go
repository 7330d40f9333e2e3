// Package api implements the local control plane: a small HTTP surface that
// lets scripts drive the vault while the interactive session is running.
//
// Every route except POST /api/auth and the banner requires an
// Authorization header carrying a token minted by POST /api/auth. Mutating
// routes publish a short action label through the Notifier once the change
// has been committed, so other presentation layers can resync.
package api
