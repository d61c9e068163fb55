package models

import "time"

// PasswordResetTTL is how long a reset request can be confirmed.
const PasswordResetTTL = time.Hour

type ResetState string

const (
	ResetPending  ResetState = "pending"
	ResetConsumed ResetState = "consumed"
	ResetExpired  ResetState = "expired"
)

// PasswordResetRequest is a single-use credential for one password change.
// Used covers both consumption and invalidation by a newer request; the two
// are indistinguishable once stored.
type PasswordResetRequest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Token     string    `gorm:"size:255;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
}

func (r *PasswordResetRequest) State(now time.Time) ResetState {
	switch {
	case r.Used:
		return ResetConsumed
	case !r.ExpiresAt.After(now):
		return ResetExpired
	default:
		return ResetPending
	}
}

func (r *PasswordResetRequest) IsValid(now time.Time) bool {
	return r.State(now) == ResetPending
}
