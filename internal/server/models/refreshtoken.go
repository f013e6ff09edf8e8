package models

import "time"

// RefreshToken is the stored side of an opaque refresh token. Only the SHA-256
// of the raw value is kept. Tokens sharing a FamilyID belong to one session
// and form a chain through ReplacedBy.
type RefreshToken struct {
	ID         string
	FamilyID   string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy *string
}

// Active reports whether the token can still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
