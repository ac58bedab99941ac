package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/signoff/internal/b64x"
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

const selectColumns = `credential_id, user_id, device_id, public_key, counter, device_type,
		 backed_up, transports, aaguid, created_at, last_used_at`

func (r *PostgresRepository) Create(ctx context.Context, c *models.Credential) error {
	query :=
		`INSERT INTO credentials (credential_id, user_id, device_id, public_key, counter,
		 device_type, backed_up, transports, aaguid)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`

	var deviceID sql.NullInt64
	if c.DeviceID != nil {
		deviceID = sql.NullInt64{Int64: *c.DeviceID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		b64x.Encode(c.CredentialID),
		c.UserID,
		deviceID,
		b64x.Encode(c.PublicKey),
		int64(c.Counter),
		c.DeviceType,
		c.BackedUp,
		strings.Join(c.Transports, ","),
		b64x.Encode(c.AAGUID),
	).Scan(&c.CreatedAt)
	if err != nil {
		switch {
		case dbx.IsUniqueViolation(err):
			return common.ErrorConflict
		case dbx.IsForeignKeyViolation(err):
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	query := `SELECT ` + selectColumns + ` FROM credentials
		 WHERE credential_id = $1`

	rows, err := r.db.QueryContext(ctx, query, b64x.Encode(credentialID))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	list, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, common.ErrorNotFound
	}

	return list[0], nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.Credential, error) {
	query := `SELECT ` + selectColumns + ` FROM credentials
		 WHERE user_id = $1
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return scanAll(rows)
}

func (r *PostgresRepository) ListByUserAndDevice(ctx context.Context, userID string, deviceID int64) ([]*models.Credential, error) {
	query := `SELECT ` + selectColumns + ` FROM credentials
		 WHERE user_id = $1 AND device_id = $2
		 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return scanAll(rows)
}

func (r *PostgresRepository) BumpCounter(ctx context.Context, credentialID []byte, newCounter uint32) error {
	id := b64x.Encode(credentialID)

	query :=
		`UPDATE credentials SET counter = $2, last_used_at = now()
		 WHERE credential_id = $1 AND counter < $2`

	res, err := r.db.ExecContext(ctx, query, id, int64(newCounter))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		// either the id is unknown or the counter did not increase
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM credentials WHERE credential_id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return common.ErrorNotFound
		}
		return common.ErrReplayDetected
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func scanAll(rows *sql.Rows) ([]*models.Credential, error) {
	defer rows.Close()

	var result []*models.Credential
	for rows.Next() {
		var (
			c          models.Credential
			id, pk     string
			deviceID   sql.NullInt64
			counter    int64
			transports string
			aaguid     string
			lastUsed   sql.NullTime
		)
		if err := rows.Scan(&id, &c.UserID, &deviceID, &pk, &counter, &c.DeviceType,
			&c.BackedUp, &transports, &aaguid, &c.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}

		var err error
		if c.CredentialID, err = b64x.Decode(id); err != nil {
			return nil, fmt.Errorf("credential id %q: %w", id, err)
		}
		if c.PublicKey, err = b64x.Decode(pk); err != nil {
			return nil, fmt.Errorf("public key of %q: %w", id, err)
		}
		if c.AAGUID, err = b64x.Decode(aaguid); err != nil {
			return nil, fmt.Errorf("aaguid of %q: %w", id, err)
		}
		if deviceID.Valid {
			v := deviceID.Int64
			c.DeviceID = &v
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			c.LastUsedAt = &t
		}
		c.Counter = uint32(counter)
		if transports != "" {
			c.Transports = strings.Split(transports, ",")
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
