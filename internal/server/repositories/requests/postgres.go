package requests

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Create(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	query :=
		`INSERT INTO approval_requests (package_id, title)
		 VALUES ($1, $2)
		 RETURNING id, status, created_at`

	err := r.db.QueryRowContext(ctx, query, req.PackageID, req.Title).
		Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return req, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.ApprovalRequest, error) {
	query :=
		`SELECT id, package_id, title, status, created_at, decided_at FROM approval_requests
		 WHERE id = $1`

	rows, err := r.db.QueryContext(ctx, query, id)
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

func (r *PostgresRepository) ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalRequest, error) {
	query :=
		`SELECT id, package_id, title, status, created_at, decided_at FROM approval_requests
		 WHERE package_id = $1
		 ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return scanAll(rows)
}

func (r *PostgresRepository) Transition(ctx context.Context, id int64, status models.RequestStatus) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("invalid target status %q", status)
	}

	query :=
		`UPDATE approval_requests SET status = $2::approval_request_status, decided_at = now()
		 WHERE id = $1 AND status = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}

	return n == 1, nil
}

func scanAll(rows *sql.Rows) ([]*models.ApprovalRequest, error) {
	defer rows.Close()

	var result []*models.ApprovalRequest
	for rows.Next() {
		var (
			req     models.ApprovalRequest
			status  string
			decided sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.PackageID, &req.Title, &status, &req.CreatedAt, &decided); err != nil {
			return nil, err
		}
		req.Status = models.RequestStatus(status)
		if decided.Valid {
			t := decided.Time
			req.DecidedAt = &t
		}
		result = append(result, &req)
	}

	return result, rows.Err()
}
