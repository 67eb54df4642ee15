package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

func init() {
	// sqlx only knows "sqlite3" as a ?-placeholder driver.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const userColumns = `id, unique_id, username, username_normalized, email, phone,
	password_hash, profile_picture_url, status, is_active, role, created_at, updated_at`

const cardColumns = `id, unique_id, username, profile_picture_url, status`

// uniqueIDAttempts bounds retries when a random display id collides.
const uniqueIDAttempts = 8

// CreateUser inserts a new account.
//
// ID is an xid: sortable, 20 characters, generated without coordination.
// UniqueID is drawn at random from the nine-digit space; a collision on it is
// retried with a fresh number, any other UNIQUE failure (email, phone,
// username) is reported as the matching repository.ErrDuplicate* error.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	now := db.now()
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.IsActive = true
	if u.Status == "" {
		u.Status = model.StatusOffline
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}

	for attempt := 0; attempt < uniqueIDAttempts; attempt++ {
		u.UniqueID = model.MinUniqueID + rand.Int64N(model.MaxUniqueID-model.MinUniqueID+1)

		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ID, u.UniqueID, u.Username, u.UsernameNormalized, u.Email, u.Phone,
			u.PasswordHash, u.ProfilePictureURL, u.Status, u.IsActive, u.Role,
			u.CreatedAt, u.UpdatedAt,
		)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) && strings.Contains(err.Error(), "users.unique_id") {
			continue
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: inserting user %q: %w", u.UsernameNormalized, userDuplicate(err))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", u.UsernameNormalized, err)
	}
	return fmt.Errorf("sqlite: no free display id after %d attempts", uniqueIDAttempts)
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email, email)
}

func (db *DB) GetUserByUniqueID(ctx context.Context, uniqueID int64) (*model.User, error) {
	return db.getUser(ctx, "unique_id", uniqueID, strconv.FormatInt(uniqueID, 10))
}

func (db *DB) GetUserByUsername(ctx context.Context, normalized string) (*model.User, error) {
	return db.getUser(ctx, "username_normalized", normalized, normalized)
}

// getUser loads one row by a unique column. column is always a constant from
// this file, never caller input.
func (db *DB) getUser(ctx context.Context, column string, value any, label string) (*model.User, error) {
	var u model.User
	err := db.conn.GetContext(ctx, &u,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", label)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, label, err)
	}
	return &u, nil
}

func (db *DB) UsernameTaken(ctx context.Context, normalized, excludeID string) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM users WHERE username_normalized = ? AND id <> ?`,
		normalized, excludeID)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", normalized, err)
	}
	return n > 0, nil
}

func (db *DB) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, `SELECT COUNT(*) FROM users WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking email: %w", err)
	}
	return n > 0, nil
}

// UpdateProfile applies the non-nil fields of upd and returns the fresh row.
func (db *DB) UpdateProfile(ctx context.Context, id string, upd model.ProfileUpdate) (*model.User, error) {
	var (
		sets []string
		args []any
	)
	if upd.Username != nil {
		sets = append(sets, "username = ?", "username_normalized = ?")
		normalized := *upd.Username
		if upd.UsernameNormalized != nil {
			normalized = *upd.UsernameNormalized
		}
		args = append(args, *upd.Username, normalized)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.ProfilePictureURL != nil {
		sets = append(sets, "profile_picture_url = ?")
		args = append(args, *upd.ProfilePictureURL)
	}
	if len(sets) == 0 {
		return db.GetUserByID(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, db.now(), id)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("sqlite: updating user %s: %w", id, userDuplicate(err))
		}
		return nil, fmt.Errorf("sqlite: updating user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperror.NotFound("user", id)
	}
	return db.GetUserByID(ctx, id)
}

func (db *DB) GetUserCards(ctx context.Context, ids []string) ([]model.UserCard, error) {
	if len(ids) == 0 {
		return []model.UserCard{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+cardColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("sqlite: building user card query: %w", err)
	}

	cards := []model.UserCard{}
	if err := db.conn.SelectContext(ctx, &cards, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlite: loading user cards: %w", err)
	}
	return cards, nil
}
