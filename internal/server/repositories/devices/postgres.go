package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/signoff/internal/common"
	"github.com/dmitrijs2005/signoff/internal/dbx"
	"github.com/dmitrijs2005/signoff/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) (*models.Device, error) {
	query :=
		`INSERT INTO devices (user_id, name, push_token)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (push_token)
		 DO UPDATE SET name = EXCLUDED.name
		 WHERE devices.user_id = EXCLUDED.user_id
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, device.UserID, device.Name, device.PushToken).
		Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// the conflicting token belongs to someone else
			return nil, common.ErrorConflict
		case dbx.IsForeignKeyViolation(err):
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return device, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Device, error) {
	query :=
		`SELECT id, user_id, name, push_token, created_at FROM devices
		 WHERE id = $1`

	var d models.Device
	err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.UserID, &d.Name, &d.PushToken, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &d, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Device, error) {
	query :=
		`SELECT id, user_id, name, push_token, created_at FROM devices
		 WHERE user_id = $1
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.PushToken, &d.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}

	return result, rows.Err()
}
