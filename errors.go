package accounts

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced on rich errors so callers can branch without string
// matching. The token codes are internal only: token failures collapse into
// ErrInvalidToken before they leave the package.
const (
	TextCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	TextCodeDuplicateUsername = "DUPLICATE_USERNAME"
	TextCodeWeakPassword      = "WEAK_PASSWORD"
	TextCodeInvalidToken      = "INVALID_TOKEN"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeStoreUnavailable  = "STORE_UNAVAILABLE"

	textCodeTokenNotFound     = "TOKEN_NOT_FOUND"
	textCodeTokenExpired      = "TOKEN_EXPIRED"
	textCodeTokenConsumed     = "TOKEN_ALREADY_USED"
	textCodeTokenWrongPurpose = "TOKEN_WRONG_PURPOSE"
)

// ErrDuplicateEmail is returned when registering with an email already in use
var ErrDuplicateEmail = goerrors.New("email address is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrDuplicateUsername is returned when registering with a username already in use
var ErrDuplicateUsername = goerrors.New("username is already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when a password does not meet the minimum policy
var ErrWeakPassword = goerrors.New("password does not meet the minimum requirements", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken is the single externally visible token failure. Not found,
// expired, consumed, and wrong purpose all collapse into it so a caller
// cannot enumerate which condition actually fired.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidCredentials is the generic authentication failure. It covers
// unknown email, wrong password, and inactive account alike.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrNoEmptyPassword rejects empty strings before they reach the hasher
var ErrNoEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// internal token errors, collapsed by collapseTokenError before leaving the package

var errTokenNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeTokenNotFound).
	WithCode(goerrors.CodeNotFound)

var errTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithTextCode(textCodeTokenExpired)

var errTokenConsumed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithTextCode(textCodeTokenConsumed).
	WithCode(goerrors.CodeConflict)

var errTokenWrongPurpose = goerrors.New("token purpose mismatch", goerrors.CategoryValidation).
	WithTextCode(textCodeTokenWrongPurpose)

// WrapStoreError tags a persistence failure as retryable infrastructure
// trouble rather than a domain outcome.
func WrapStoreError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeStoreUnavailable)
}

// IsTokenError reports whether err is one of the internal token failures
func IsTokenError(err error) bool {
	if err == nil {
		return false
	}
	switch textCode(err) {
	case textCodeTokenNotFound, textCodeTokenExpired, textCodeTokenConsumed, textCodeTokenWrongPurpose:
		return true
	default:
		return false
	}
}

// IsStoreUnavailable reports whether err represents transient store trouble
func IsStoreUnavailable(err error) bool {
	return textCode(err) == TextCodeStoreUnavailable
}

// collapseTokenError maps any internal token failure onto the generic
// ErrInvalidToken; anything else passes through untouched.
func collapseTokenError(err error) error {
	if err == nil {
		return nil
	}
	if IsTokenError(err) {
		return ErrInvalidToken
	}
	return err
}

func textCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
