// Package accounts implements a user identity and credential lifecycle
// engine: account creation, password hashing and verification, and
// time-bounded single-use confirmation tokens for email confirmation and
// password reset.
//
// Components:
//   - CredentialStore owns user records, password hashes, and the
//     active/email-confirmed flags.
//   - TokenEngine issues and redeems single-use tokens. Raw values are
//     returned exactly once; only a sha256 digest is stored, and redemption
//     is a transactional compare-and-swap so a token can never be spent
//     twice.
//   - Lifecycle exposes the operations a web layer calls: Register,
//     ConfirmEmail, RequestPasswordReset, ResetPassword, Authenticate.
//
// Collaborators are injected: a RepositoryManager over Bun for persistence,
// a Notifier for message delivery (the package never sends email itself),
// a Clock for testable expiry, and an ActivitySink for audit events.
// Session issuance, routing, and rendering are deliberately left to the
// caller.
package accounts
