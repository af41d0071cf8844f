package users

import (
	"database/sql"
	"time"

	"github.com/avolkov/authgate/internal/server/auth"
)

// User is the persisted credential record. ID is internal to the store; UID
// is the public, opaque identifier carried in token subjects and never
// reused. RefreshToken holds at most one active value per user and is NULL
// until the first login.
type User struct {
	ID           int64
	UID          string
	Email        string
	PasswordHash string
	Role         auth.Role
	RefreshToken sql.NullString
	CreatedAt    time.Time
}
