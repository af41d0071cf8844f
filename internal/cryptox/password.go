// Package cryptox implements the one-way password hashing contract used by
// the credential flows. The hash output is opaque to the rest of the system;
// only Hash and Compare may interpret it.
package cryptox

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordMismatch is returned by Compare when the password does not match
// the stored hash. Any other error from Compare means the verification itself
// failed (malformed hash, unsupported version).
var ErrPasswordMismatch = errors.New("password mismatch")

// ErrEmptyPassword is returned by Hash for empty input.
var ErrEmptyPassword = errors.New("empty password")

const DefaultCost = bcrypt.DefaultCost

// BcryptHasher hashes passwords with bcrypt. Each hash carries its own
// random salt; Compare is constant-time.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher with the given cost. Costs outside the
// bcrypt range fall back to DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *BcryptHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}
