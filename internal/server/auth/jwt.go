package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avolkov/authgate/internal/common"
)

// Claims is the wire shape of the signed payload: registered claims carry
// the subject (public uid) and expiry, plus the role and purpose tags.
type Claims struct {
	jwt.RegisteredClaims
	Role    string `json:"role"`
	Purpose string `json:"purpose"`
}

// TokenClaims is the validated, typed view handed to callers after Decode.
type TokenClaims struct {
	Subject   string
	Role      Role
	Purpose   Purpose
	ExpiresAt time.Time
}

// Codec signs and verifies tokens with HMAC-SHA512 over a process-wide
// secret. The secret is loaded once at startup and never mutated, so a Codec
// is safe for concurrent use without locking.
type Codec struct {
	secret []byte
}

func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Encode builds claims expiring at now+ttl and signs them. The subject is
// the user's public uid. Each token carries a fresh jti so two tokens minted
// for the same subject within the same second still differ.
func (c *Codec) Encode(subject string, role Role, purpose Purpose, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:    role.String(),
		Purpose: string(purpose),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the typed claims.
// Bad signature, malformed structure, lapsed expiry, and unknown role or
// purpose values all collapse into common.ErrTokenInvalidOrExpired. Decode
// has no side effects; it is a pure function of (secret, token, clock).
func (c *Codec) Decode(tokenString string) (*TokenClaims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, common.ErrTokenInvalidOrExpired
	}

	// Unknown role or purpose strings are a hard failure rather than a
	// silent downgrade: a token we cannot fully interpret is not trusted.
	role, ok := ParseRole(claims.Role)
	if !ok {
		return nil, common.ErrTokenInvalidOrExpired
	}
	purpose, ok := ParsePurpose(claims.Purpose)
	if !ok {
		return nil, common.ErrTokenInvalidOrExpired
	}

	return &TokenClaims{
		Subject:   claims.Subject,
		Role:      role,
		Purpose:   purpose,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
