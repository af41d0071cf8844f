// Package auth implements the signed-token codec and the closed role model.
package auth

// Role is the authorization role carried inside a token. The set is closed:
// anything outside it is rejected at decode time.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// ParseRole maps a string onto the closed role set.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

func (r Role) String() string { return string(r) }

// Purpose tags what a token may be used for. Access tokens authorize API
// calls; refresh tokens may only be exchanged for a new pair. Kept separate
// from Role so a refresh token still records the user's real role.
type Purpose string

const (
	PurposeAccess  Purpose = "Access"
	PurposeRefresh Purpose = "Refresh"
)

// ParsePurpose maps a string onto the closed purpose set.
func ParsePurpose(s string) (Purpose, bool) {
	switch Purpose(s) {
	case PurposeAccess, PurposeRefresh:
		return Purpose(s), true
	default:
		return "", false
	}
}
