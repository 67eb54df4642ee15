package model

import "time"

// OTPChallenge is one verification window for an email address.
//
// Only the newest unused challenge for an email is ever "live": issuing a new
// one marks every older unused challenge as used. Attempts counts wrong codes
// submitted against this challenge.
type OTPChallenge struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	Phone     *string   `db:"phone"`
	Code      string    `db:"code"`
	ExpiresAt time.Time `db:"expires_at"`
	IsUsed    bool      `db:"is_used"`
	Attempts  int       `db:"attempts"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the challenge is past its expiry at now.
func (c *OTPChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
