package models

import "time"

// RefreshTokenTTL is how long a refresh token stays usable after issuance.
const RefreshTokenTTL = 30 * 24 * time.Hour

type TokenState string

const (
	TokenActive  TokenState = "active"
	TokenRevoked TokenState = "revoked"
	TokenExpired TokenState = "expired"
)

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Token     string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
}

// State reports the lifecycle state at now. Revoked wins over Expired.
func (t *RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.Revoked:
		return TokenRevoked
	case !t.ExpiresAt.After(now):
		return TokenExpired
	default:
		return TokenActive
	}
}

func (t *RefreshToken) IsValid(now time.Time) bool {
	return t.State(now) == TokenActive
}
