package users

import (
	"context"
)

// Repository is the credential store contract. The store owns the two
// guarantees the service layer cannot provide on its own: email uniqueness
// on insert, and atomic compare-and-swap refresh-token rotation.
type Repository interface {
	// Create inserts a new record. A duplicate email yields
	// common.ErrUserAlreadyExists regardless of any earlier lookup.
	Create(ctx context.Context, user *User) (*User, error)

	// GetByEmail returns common.ErrUserNotFound when no record matches.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByRefreshToken matches the currently stored refresh token exactly.
	// Tokens rotated away by a later login or refresh no longer match and
	// yield common.ErrUserNotFound.
	GetByRefreshToken(ctx context.Context, token string) (*User, error)

	// SetRefreshToken unconditionally replaces the stored refresh token.
	SetRefreshToken(ctx context.Context, userID int64, token string) error

	// RotateRefreshToken replaces the stored token only if it still equals
	// oldToken. When the stored value has moved on (a concurrent rotation
	// won), it returns common.ErrUserNotFound so the loser observes the
	// same failure as an already-rotated token.
	RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) error
}
