// Package model defines the data structures used throughout the application.
package model

import "time"

// UserStatus is the presence a user advertises to friends.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusDriving UserStatus = "driving"
	StatusOffline UserStatus = "offline"
)

// Valid reports whether s is one of the known presence values.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusDriving, StatusOffline:
		return true
	}
	return false
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Public display ids are nine-digit numbers users can read out to each other.
const (
	MinUniqueID int64 = 100000000
	MaxUniqueID int64 = 999999999
)

// User represents a registered account.
//
// ID is our own opaque identifier (an xid string). UniqueID is the
// human-shareable nine-digit number shown in the app; it is never used as a
// foreign key.
//
// WHY POINTERS FOR Email, Phone AND PasswordHash?
// All three are optional and all three are UNIQUE when present. SQLite treats
// NULLs as distinct for UNIQUE constraints but treats '' as a value, so an
// empty string would let only one phone-less user exist. A nil pointer maps
// to NULL and keeps the constraint honest.
type User struct {
	ID                 string     `json:"id"                  db:"id"`
	UniqueID           int64      `json:"unique_id"           db:"unique_id"`
	Username           string     `json:"username"            db:"username"`
	UsernameNormalized string     `json:"-"                   db:"username_normalized"`
	Email              *string    `json:"email"               db:"email"`
	Phone              *string    `json:"phone"               db:"phone"`
	PasswordHash       *string    `json:"-"                   db:"password_hash"`
	ProfilePictureURL  *string    `json:"profile_picture_url" db:"profile_picture_url"`
	Status             UserStatus `json:"status"              db:"status"`
	IsActive           bool       `json:"-"                   db:"is_active"`
	Role               string     `json:"role"                db:"role"`
	CreatedAt          time.Time  `json:"created_at"          db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"          db:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
// OTP-only accounts have no credential hash.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Profile is the redacted view of a User that is safe to return to clients.
// It never carries the credential hash or the activation flag.
type Profile struct {
	ID                string     `json:"id"`
	UniqueID          int64      `json:"unique_id"`
	Username          string     `json:"username"`
	Email             *string    `json:"email"`
	Phone             *string    `json:"phone"`
	ProfilePictureURL *string    `json:"profile_picture_url"`
	Status            UserStatus `json:"status"`
	Role              string     `json:"role"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Profile returns the public profile for u.
func (u *User) Profile() *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:                u.ID,
		UniqueID:          u.UniqueID,
		Username:          u.Username,
		Email:             u.Email,
		Phone:             u.Phone,
		ProfilePictureURL: u.ProfilePictureURL,
		Status:            u.Status,
		Role:              u.Role,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// UserCard is the compact form of a user shown in search results, friend
// lists and request lists.
type UserCard struct {
	ID                string     `json:"id"                  db:"id"`
	UniqueID          int64      `json:"unique_id"           db:"unique_id"`
	Username          string     `json:"username"            db:"username"`
	ProfilePictureURL *string    `json:"profile_picture_url" db:"profile_picture_url"`
	Status            UserStatus `json:"status"              db:"status"`
}

// Card returns the compact form of u. It carries no contact details.
func (u *User) Card() UserCard {
	return UserCard{
		ID:                u.ID,
		UniqueID:          u.UniqueID,
		Username:          u.Username,
		ProfilePictureURL: u.ProfilePictureURL,
		Status:            u.Status,
	}
}

// ProfileUpdate carries the optional fields of a profile edit.
// A nil field means "leave unchanged".
type ProfileUpdate struct {
	Username           *string
	UsernameNormalized *string
	Status             *UserStatus
	ProfilePictureURL  *string
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Username == nil && p.Status == nil && p.ProfilePictureURL == nil
}
