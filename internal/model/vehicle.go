package model

import "time"

// Vehicle is an entry in a user's garage. At most one vehicle per user is
// flagged primary; the social views show that one next to the user.
type Vehicle struct {
	ID            int64     `json:"id"            db:"id"`
	UserID        string    `json:"user_id"       db:"user_id"`
	Model         string    `json:"model"         db:"model"`
	Power         string    `json:"power"         db:"power"`
	FuelType      string    `json:"fuel_type"     db:"fuel_type"`
	Modifications string    `json:"modifications" db:"modifications"`
	ImageURL      *string   `json:"image_url"     db:"image_url"`
	IsPrimary     bool      `json:"is_primary"    db:"is_primary"`
	CreatedAt     time.Time `json:"created_at"    db:"created_at"`
}
