// Package users implements the credential and session lifecycle core:
// signup, login, and refresh-token rotation over the credential store.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/authgate/internal/common"
	"github.com/avolkov/authgate/internal/cryptox"
	"github.com/avolkov/authgate/internal/server/auth"
	"github.com/avolkov/authgate/internal/server/config"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// PasswordHasher is the one-way hash contract the flows depend on. Compare
// must distinguish a mismatch (cryptox.ErrPasswordMismatch) from a failure
// of the verification itself.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) error
}

// Service orchestrates the three credential flows. It holds no mutable
// state of its own; all shared state lives behind Repository.
type Service struct {
	repo                         Repository
	hasher                       PasswordHasher
	codec                        *auth.Codec
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

// NewService constructs a Service from the store, the hash contract, the
// token codec, and server config.
func NewService(repo Repository, hasher PasswordHasher, codec *auth.Codec, cfg *config.Config) *Service {
	return &Service{
		repo:                         repo,
		hasher:                       hasher,
		codec:                        codec,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
	}
}

// Signup creates a new user record. The role string defaults to User when
// empty or unrecognized. Duplicate emails yield common.ErrUserAlreadyExists;
// the store's unique index backs this even under concurrent signups.
func (s *Service) Signup(ctx context.Context, email, password, role string) (*User, error) {
	parsedRole, ok := auth.ParseRole(role)
	if !ok {
		parsedRole = auth.RoleUser
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, common.ErrUserAlreadyExists
	} else if !errors.Is(err, common.ErrUserNotFound) {
		return nil, common.ErrStorePersistence
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrHashingFailure
	}

	user := &User{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         parsedRole,
	}

	user, err = s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrUserAlreadyExists) {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, common.ErrStorePersistence
	}

	return user, nil
}

// Login verifies the password and mints a fresh token pair. The new refresh
// token unconditionally replaces any stored value: a successful login
// invalidates a previously issued, unused refresh token for that user.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.ErrStorePersistence
	}

	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrPasswordMismatch) {
			return nil, common.ErrCredentialsIncorrect
		}
		return nil, common.ErrHashingFailure
	}

	pair, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, common.ErrStorePersistence
	}

	return pair, nil
}

// Refresh exchanges a refresh token for a new pair, rotating the stored
// value. A token that is cryptographically valid but no longer equals the
// stored value fails with common.ErrUserNotFound: rotation must prevent
// reuse of superseded tokens, including the loser of a concurrent race.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, err := s.repo.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.ErrStorePersistence
	}

	// Signature and expiry are checked independently of the store match.
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return nil, common.ErrTokenInvalidOrExpired
	}
	if claims.Purpose != auth.PurposeRefresh {
		return nil, common.ErrTokenInvalidOrExpired
	}

	pair, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}

	if err := s.repo.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken); err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, common.ErrStorePersistence
	}

	return pair, nil
}

func (s *Service) mintTokenPair(user *User) (*TokenPair, error) {
	access, err := s.codec.Encode(user.UID, user.Role, auth.PurposeAccess, s.accessTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Encode(user.UID, user.Role, auth.PurposeRefresh, s.refreshTokenValidityDuration)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
