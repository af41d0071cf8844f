// Package common defines the sentinel errors shared by the auth core and the
// transport layer. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Authorization header / filter errors.
	ErrAuthHeaderMissing   = errors.New("no auth header")
	ErrAuthHeaderMalformed = errors.New("invalid auth header")
	ErrInsufficientRole    = errors.New("no permission")

	// Token errors. Decode collapses bad signature, malformed structure and
	// lapsed expiry into a single value so callers cannot distinguish them.
	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")

	// Credential flow errors.
	ErrCredentialsIncorrect = errors.New("wrong credentials")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrHashingFailure       = errors.New("password hashing failed")

	// Store and startup errors.
	ErrStorePersistence  = errors.New("store persistence failure")
	ErrSecretUnavailable = errors.New("signing secret unavailable")
)
