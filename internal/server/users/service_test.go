package users

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/authgate/internal/common"
	"github.com/avolkov/authgate/internal/cryptox"
	"github.com/avolkov/authgate/internal/server/auth"
	"github.com/avolkov/authgate/internal/server/config"
)

// --- helpers ---

// memRepo is an in-memory Repository with the same guarantees the Postgres
// implementation provides: unique email on insert and compare-and-swap
// refresh-token rotation.
type memRepo struct {
	mu      sync.Mutex
	seq     int64
	records map[string]*User // by email
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*User)}
}

func (m *memRepo) Create(ctx context.Context, user *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[user.Email]; ok {
		return nil, common.ErrUserAlreadyExists
	}
	m.seq++
	user.ID = m.seq
	user.CreatedAt = time.Now()
	stored := *user
	m.records[user.Email] = &stored
	return user, nil
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.records[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, common.ErrUserNotFound
}

func (m *memRepo) GetByRefreshToken(ctx context.Context, token string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.RefreshToken.Valid && u.RefreshToken.String == token {
			copied := *u
			return &copied, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (m *memRepo) SetRefreshToken(ctx context.Context, userID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.ID == userID {
			u.RefreshToken = sql.NullString{String: token, Valid: true}
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (m *memRepo) RotateRefreshToken(ctx context.Context, userID int64, oldToken, newToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.records {
		if u.ID == userID && u.RefreshToken.Valid && u.RefreshToken.String == oldToken {
			u.RefreshToken = sql.NullString{String: newToken, Valid: true}
			return nil
		}
	}
	return common.ErrUserNotFound
}

func (m *memRepo) storedRefreshToken(t *testing.T, email string) sql.NullString {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.records[email]
	if !ok {
		t.Fatalf("no record for %s", email)
	}
	return u.RefreshToken
}

type failingHasher struct {
	hashErr    error
	compareErr error
}

func (f *failingHasher) Hash(password string) (string, error) { return "", f.hashErr }
func (f *failingHasher) Compare(password, hash string) error  { return f.compareErr }

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	cfg := &config.Config{
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 14 * 24 * time.Hour,
	}
	codec := auth.NewCodec([]byte("test-secret"))
	return NewService(repo, cryptox.NewBcryptHasher(bcrypt.MinCost), codec, cfg)
}

// --- signup ---

func TestSignup_CreatesUserWithUID(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	user, err := s.Signup(context.Background(), "a@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	if user.UID == "" {
		t.Fatalf("expected generated uid")
	}
	if user.Role != auth.RoleUser {
		t.Fatalf("expected default role User, got %v", user.Role)
	}
	if user.PasswordHash == "pw123" || user.PasswordHash == "" {
		t.Fatalf("password must be stored hashed, got %q", user.PasswordHash)
	}
	if user.RefreshToken.Valid {
		t.Fatalf("no refresh token should be issued at signup")
	}
}

func TestSignup_RoleHandling(t *testing.T) {
	s := newTestService(t, newMemRepo())

	admin, err := s.Signup(context.Background(), "adm@x.com", "pw", "Admin")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	if admin.Role != auth.RoleAdmin {
		t.Fatalf("expected Admin, got %v", admin.Role)
	}

	weird, err := s.Signup(context.Background(), "w@x.com", "pw", "Superuser")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	if weird.Role != auth.RoleUser {
		t.Fatalf("unknown role must default to User, got %v", weird.Role)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("first Signup error: %v", err)
	}
	_, err := s.Signup(context.Background(), "a@x.com", "other", "")
	if !errors.Is(err, common.ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
	if len(repo.records) != 1 {
		t.Fatalf("store must hold exactly one record, got %d", len(repo.records))
	}
}

func TestSignup_HasherFailure(t *testing.T) {
	s := newTestService(t, newMemRepo())
	s.hasher = &failingHasher{hashErr: errors.New("boom")}

	_, err := s.Signup(context.Background(), "a@x.com", "pw123", "")
	if !errors.Is(err, common.ErrHashingFailure) {
		t.Fatalf("expected ErrHashingFailure, got %v", err)
	}
}

// --- login ---

func TestLogin_Success(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	user, err := s.Signup(context.Background(), "a@x.com", "pw123", "Admin")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}

	pair, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	claims, err := s.codec.Decode(pair.AccessToken)
	if err != nil {
		t.Fatalf("decoding access token: %v", err)
	}
	if claims.Subject != user.UID || claims.Role != auth.RoleAdmin || claims.Purpose != auth.PurposeAccess {
		t.Fatalf("unexpected access claims: %+v", claims)
	}

	refreshClaims, err := s.codec.Decode(pair.RefreshToken)
	if err != nil {
		t.Fatalf("decoding refresh token: %v", err)
	}
	if refreshClaims.Purpose != auth.PurposeRefresh {
		t.Fatalf("refresh token purpose = %v", refreshClaims.Purpose)
	}

	stored := repo.storedRefreshToken(t, "a@x.com")
	if !stored.Valid || stored.String != pair.RefreshToken {
		t.Fatalf("stored refresh token must equal the returned one")
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	s := newTestService(t, newMemRepo())

	_, err := s.Login(context.Background(), "ghost@x.com", "pw")
	if !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLogin_WrongPasswordLeavesRefreshTokenAlone(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	pair, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	_, err = s.Login(context.Background(), "a@x.com", "wrong")
	if !errors.Is(err, common.ErrCredentialsIncorrect) {
		t.Fatalf("expected ErrCredentialsIncorrect, got %v", err)
	}

	stored := repo.storedRefreshToken(t, "a@x.com")
	if !stored.Valid || stored.String != pair.RefreshToken {
		t.Fatalf("failed login must not alter the stored refresh token")
	}
}

func TestLogin_ReplacesPriorRefreshToken(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	first, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("first Login error: %v", err)
	}
	second, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("second Login error: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatalf("each login must mint a distinct refresh token")
	}

	// The first token is superseded: refreshing with it must fail.
	if _, err := s.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for superseded token, got %v", err)
	}
}

func TestLogin_VerifyFailure(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	s.hasher = &failingHasher{compareErr: errors.New("hash backend down")}

	_, err := s.Login(context.Background(), "a@x.com", "pw123")
	if !errors.Is(err, common.ErrHashingFailure) {
		t.Fatalf("expected ErrHashingFailure, got %v", err)
	}
}

// --- refresh ---

func TestRefresh_RotationSequence(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	login, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	rotated, err := s.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if rotated.RefreshToken == login.RefreshToken {
		t.Fatalf("rotation must produce a new refresh token")
	}

	// Reusing the superseded token must fail exactly like an unknown one.
	if _, err := s.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on reuse, got %v", err)
	}

	// The rotated token keeps working.
	if _, err := s.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("Refresh with rotated token: %v", err)
	}
}

func TestRefresh_UnknownToken(t *testing.T) {
	s := newTestService(t, newMemRepo())

	// Cryptographically valid, but never stored.
	tok, err := s.codec.Encode("some-uid", auth.RoleUser, auth.PurposeRefresh, time.Hour)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if _, err := s.Refresh(context.Background(), tok); !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRefresh_ExpiredStoredToken(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	user, err := s.Signup(context.Background(), "a@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	expired, err := s.codec.Encode(user.UID, auth.RoleUser, auth.PurposeRefresh, -time.Minute)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if err := repo.SetRefreshToken(context.Background(), user.ID, expired); err != nil {
		t.Fatalf("SetRefreshToken error: %v", err)
	}

	_, err = s.Refresh(context.Background(), expired)
	if !errors.Is(err, common.ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired, got %v", err)
	}
}

func TestRefresh_AccessTokenRejected(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	user, err := s.Signup(context.Background(), "a@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	access, err := s.codec.Encode(user.UID, auth.RoleUser, auth.PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if err := repo.SetRefreshToken(context.Background(), user.ID, access); err != nil {
		t.Fatalf("SetRefreshToken error: %v", err)
	}

	_, err = s.Refresh(context.Background(), access)
	if !errors.Is(err, common.ErrTokenInvalidOrExpired) {
		t.Fatalf("an access token must not pass the refresh flow, got %v", err)
	}
}

func TestRefresh_ConcurrentRotation(t *testing.T) {
	repo := newMemRepo()
	s := newTestService(t, repo)

	if _, err := s.Signup(context.Background(), "a@x.com", "pw123", ""); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	login, err := s.Login(context.Background(), "a@x.com", "pw123")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}

	type result struct {
		pair *TokenPair
		err  error
	}
	results := make(chan result, 2)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < 2; i++ {
		go func() {
			start.Wait()
			pair, err := s.Refresh(context.Background(), login.RefreshToken)
			results <- result{pair, err}
		}()
	}
	start.Done()

	var winners []*TokenPair
	var losers []error
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			losers = append(losers, r.err)
		} else {
			winners = append(winners, r.pair)
		}
	}

	if len(winners) != 1 || len(losers) != 1 {
		t.Fatalf("exactly one refresh must win: %d winners, %d losers", len(winners), len(losers))
	}
	if !errors.Is(losers[0], common.ErrUserNotFound) {
		t.Fatalf("loser must observe ErrUserNotFound, got %v", losers[0])
	}

	stored := repo.storedRefreshToken(t, "a@x.com")
	if !stored.Valid || stored.String != winners[0].RefreshToken {
		t.Fatalf("stored token must be the winner's; store holds a value never returned to a caller")
	}
}
