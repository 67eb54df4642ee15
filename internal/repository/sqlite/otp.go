package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/convoy/internal/apperror"
	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

var _ repository.OTPRepository = (*DB)(nil)

const otpColumns = `id, email, phone, code, expires_at, is_used, attempts, created_at`

func (db *DB) InvalidateOTPs(ctx context.Context, email string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE otp_challenges SET is_used = 1 WHERE email = ? AND is_used = 0`, email)
	if err != nil {
		return fmt.Errorf("sqlite: invalidating challenges: %w", err)
	}
	return nil
}

func (db *DB) CreateOTP(ctx context.Context, c *model.OTPChallenge) error {
	c.CreatedAt = db.now()
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.IsUsed = false
	c.Attempts = 0

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO otp_challenges (email, phone, code, expires_at, is_used, attempts, created_at)
		 VALUES (?, ?, ?, ?, 0, 0, ?)`,
		c.Email, c.Phone, c.Code, c.ExpiresAt, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting challenge: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("sqlite: reading challenge id: %w", err)
	}
	return nil
}

// LatestActiveOTP orders by id rather than created_at: ids are strictly
// increasing, timestamps can tie.
func (db *DB) LatestActiveOTP(ctx context.Context, email string) (*model.OTPChallenge, error) {
	var c model.OTPChallenge
	err := db.conn.GetContext(ctx, &c,
		`SELECT `+otpColumns+` FROM otp_challenges
		 WHERE email = ? AND is_used = 0
		 ORDER BY id DESC LIMIT 1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("otp challenge", email)
		}
		return nil, fmt.Errorf("sqlite: loading challenge: %w", err)
	}
	return &c, nil
}

func (db *DB) IncrementOTPAttempts(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE otp_challenges SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing attempts on challenge %d: %w", id, err)
	}
	return nil
}

func (db *DB) MarkOTPUsed(ctx context.Context, id int64) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE otp_challenges SET is_used = 1 WHERE id = ? AND is_used = 0`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming challenge %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: consuming challenge %d: %w", id, err)
	}
	return n == 1, nil
}

func (db *DB) DeleteExpiredOTPs(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM otp_challenges WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging challenges: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
