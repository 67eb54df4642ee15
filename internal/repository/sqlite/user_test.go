package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

// newTestDB returns a fresh in-memory database that is closed when the test
// ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

// createTestUser inserts an active user with email <username>@example.com.
func createTestUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:           username,
		UsernameNormalized: username,
		Email:              strPtr(username + "@example.com"),
	}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create test user %q: %v", username, err)
	}
	return u
}

// =========================================================================
// CreateUser
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)

	u := createTestUser(t, db, "road_runner")

	if u.ID == "" {
		t.Error("CreateUser() did not set ID")
	}
	if u.UniqueID < model.MinUniqueID || u.UniqueID > model.MaxUniqueID {
		t.Errorf("UniqueID = %d, want a nine-digit number", u.UniqueID)
	}
	if u.Status != model.StatusOffline {
		t.Errorf("Status = %q, want %q", u.Status, model.StatusOffline)
	}
	if u.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", u.Role, model.RoleUser)
	}
	if !u.IsActive {
		t.Error("new users should be active")
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreateUser() did not set CreatedAt")
	}

	got, err := db.GetUserByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.UniqueID != u.UniqueID || got.Username != "road_runner" || !got.IsActive {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.Email == nil || *got.Email != "road_runner@example.com" {
		t.Errorf("Email = %v, want road_runner@example.com", got.Email)
	}
	if got.PasswordHash != nil {
		t.Errorf("PasswordHash = %v, want nil for an OTP-only account", *got.PasswordHash)
	}
}

func TestCreateUser_Duplicates(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "first")

	tests := []struct {
		name string
		user *model.User
		want error
	}{
		{
			name: "same email",
			user: &model.User{Username: "second", UsernameNormalized: "second", Email: strPtr("first@example.com")},
			want: repository.ErrDuplicateEmail,
		},
		{
			name: "same normalized username",
			user: &model.User{Username: "FIRST", UsernameNormalized: "first", Email: strPtr("other@example.com")},
			want: repository.ErrDuplicateUsername,
		},
		{
			name: "username mentioning email",
			user: &model.User{Username: "first", UsernameNormalized: "first", Email: strPtr("myemail@example.com")},
			want: repository.ErrDuplicateUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.CreateUser(context.Background(), tt.user)
			if !errors.Is(err, repository.ErrDuplicate) {
				t.Errorf("CreateUser() error = %v, want ErrDuplicate", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateUser() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreateUser_ManyWithoutEmailOrPhone(t *testing.T) {
	db := newTestDB(t)

	// NULL is distinct under UNIQUE, so any number of accounts may omit them.
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("no_contact_%d", i)
		u := &model.User{Username: name, UsernameNormalized: name}
		if err := db.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", name, err)
		}
	}
}

// =========================================================================
// Lookups
// =========================================================================

func TestGetUser_Lookups(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "lookup_me")

	byEmail, err := db.GetUserByEmail(ctx, "lookup_me@example.com")
	if err != nil || byEmail.ID != u.ID {
		t.Errorf("GetUserByEmail() = %v, %v", byEmail, err)
	}
	byUnique, err := db.GetUserByUniqueID(ctx, u.UniqueID)
	if err != nil || byUnique.ID != u.ID {
		t.Errorf("GetUserByUniqueID() = %v, %v", byUnique, err)
	}
	byName, err := db.GetUserByUsername(ctx, "lookup_me")
	if err != nil || byName.ID != u.ID {
		t.Errorf("GetUserByUsername() = %v, %v", byName, err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.GetUserByID(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByEmail() error = %v, want ErrNotFound", err)
	}
	if _, err := db.GetUserByUniqueID(ctx, 123456789); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByUniqueID() error = %v, want ErrNotFound", err)
	}
}

func TestUsernameTaken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "taken_name")

	taken, err := db.UsernameTaken(ctx, "taken_name", "")
	if err != nil || !taken {
		t.Errorf("UsernameTaken() = %v, %v; want true", taken, err)
	}
	taken, err = db.UsernameTaken(ctx, "taken_name", u.ID)
	if err != nil || taken {
		t.Errorf("UsernameTaken(excluding owner) = %v, %v; want false", taken, err)
	}
	taken, err = db.UsernameTaken(ctx, "free_name", "")
	if err != nil || taken {
		t.Errorf("UsernameTaken(free) = %v, %v; want false", taken, err)
	}
}

// =========================================================================
// UpdateProfile
// =========================================================================

func TestUpdateProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "old_name")

	status := model.StatusDriving
	got, err := db.UpdateProfile(ctx, u.ID, model.ProfileUpdate{
		Username:           strPtr("New_Name"),
		UsernameNormalized: strPtr("new_name"),
		Status:             &status,
		ProfilePictureURL:  strPtr("https://cdn.example.com/p.jpg"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Username != "New_Name" || got.UsernameNormalized != "new_name" {
		t.Errorf("username = %q/%q", got.Username, got.UsernameNormalized)
	}
	if got.Status != model.StatusDriving {
		t.Errorf("Status = %q, want driving", got.Status)
	}
	if got.ProfilePictureURL == nil || *got.ProfilePictureURL != "https://cdn.example.com/p.jpg" {
		t.Errorf("ProfilePictureURL = %v", got.ProfilePictureURL)
	}
	if got.UniqueID != u.UniqueID {
		t.Error("UpdateProfile() must not change the display id")
	}
}

func TestUpdateProfile_Conflict(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "alpha")
	b := createTestUser(t, db, "bravo")

	_, err := db.UpdateProfile(context.Background(), b.ID, model.ProfileUpdate{
		Username:           strPtr("alpha"),
		UsernameNormalized: strPtr("alpha"),
	})
	if !errors.Is(err, repository.ErrDuplicateUsername) {
		t.Errorf("UpdateProfile() error = %v, want ErrDuplicateUsername", err)
	}
}

func TestUpdateProfile_Empty(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "unchanged")

	got, err := db.UpdateProfile(context.Background(), u.ID, model.ProfileUpdate{})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if got.Username != "unchanged" {
		t.Errorf("Username = %q", got.Username)
	}
}

func TestUpdateProfile_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	_, err := db.UpdateProfile(context.Background(), "ghost", model.ProfileUpdate{Username: strPtr("x_x")})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateProfile() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GetUserCards
// =========================================================================

func TestGetUserCards(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db, "card_a")
	b := createTestUser(t, db, "card_b")

	cards, err := db.GetUserCards(context.Background(), []string{a.ID, b.ID, "unknown"})
	if err != nil {
		t.Fatalf("GetUserCards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}

	empty, err := db.GetUserCards(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetUserCards(nil) = %v, %v", empty, err)
	}
}
