package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sakif/convoy/internal/model"
	"github.com/sakif/convoy/internal/repository"
)

var _ repository.VehicleRepository = (*DB)(nil)

const vehicleColumns = `id, user_id, model, power, fuel_type, modifications, image_url, is_primary, created_at`

// CreateVehicle inserts a garage entry. Setting IsPrimary demotes the user's
// current primary vehicle in the same transaction.
func (db *DB) CreateVehicle(ctx context.Context, v *model.Vehicle) error {
	v.CreatedAt = db.now()
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if v.IsPrimary {
			if _, err := tx.ExecContext(ctx,
				`UPDATE vehicles SET is_primary = 0 WHERE user_id = ? AND is_primary = 1`, v.UserID); err != nil {
				return fmt.Errorf("sqlite: demoting primary vehicle: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO vehicles (user_id, model, power, fuel_type, modifications, image_url, is_primary, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			v.UserID, v.Model, v.Power, v.FuelType, v.Modifications, v.ImageURL, v.IsPrimary, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("sqlite: inserting vehicle: %w", err)
		}
		v.ID, err = res.LastInsertId()
		return err
	})
}

func (db *DB) ListVehicles(ctx context.Context, userID string) ([]model.Vehicle, error) {
	vehicles := []model.Vehicle{}
	err := db.conn.SelectContext(ctx, &vehicles,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE user_id = ?
		 ORDER BY is_primary DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing vehicles of %s: %w", userID, err)
	}
	return vehicles, nil
}

// PrimaryVehicles maps user id to primary vehicle. Users without one are
// absent from the map.
func (db *DB) PrimaryVehicles(ctx context.Context, userIDs []string) (map[string]model.Vehicle, error) {
	out := make(map[string]model.Vehicle, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+vehicleColumns+` FROM vehicles WHERE is_primary = 1 AND user_id IN (?)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("sqlite: building primary vehicle query: %w", err)
	}

	var vehicles []model.Vehicle
	if err := db.conn.SelectContext(ctx, &vehicles, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlite: loading primary vehicles: %w", err)
	}
	for _, v := range vehicles {
		out[v.UserID] = v
	}
	return out, nil
}
