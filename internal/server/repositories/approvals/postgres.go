package approvals

import (
	"context"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, a *models.Approval) error {
	query :=
		`INSERT INTO approvals (request_id, user_id, credential_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, a.RequestID, a.UserID, b64x.Encode(a.CredentialID)).
		Scan(&a.ID, &a.CreatedAt)
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

func (r *PostgresRepository) ListByRequest(ctx context.Context, requestID int64) ([]*models.Approval, error) {
	query :=
		`SELECT id, request_id, user_id, credential_id, created_at FROM approvals
		 WHERE request_id = $1
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Approval
	for rows.Next() {
		var (
			a    models.Approval
			cred string
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &a.UserID, &cred, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.CredentialID, err = b64x.Decode(cred); err != nil {
			return nil, fmt.Errorf("approval %d credential id: %w", a.ID, err)
		}
		result = append(result, &a)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) SatisfiedGroupIDs(ctx context.Context, requestID int64) ([]int64, error) {
	// inner joins only: endorsers outside every group contribute nothing
	query :=
		`SELECT DISTINCT gm.group_id
		 FROM approvals a
		 JOIN approval_requests r ON r.id = a.request_id
		 JOIN approval_group_members gm ON gm.user_id = a.user_id AND gm.package_id = r.package_id
		 WHERE a.request_id = $1
		 ORDER BY gm.group_id`

	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}

	return result, rows.Err()
}
