package packages

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

func (r *PostgresRepository) Create(ctx context.Context, p *models.Package) (*models.Package, error) {
	query :=
		`INSERT INTO packages (name, owner_id)
		 VALUES ($1, $2)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, p.Name, p.OwnerID).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.Package, error) {
	query :=
		`SELECT id, name, owner_id, created_at FROM packages
		 WHERE id = $1`

	var p models.Package
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &p, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.Package, error) {
	query :=
		`SELECT p.id, p.name, p.owner_id, p.created_at FROM packages p
		 JOIN package_members m ON m.package_id = p.id
		 WHERE m.user_id = $1
		 ORDER BY p.id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Package
	for rows.Next() {
		var p models.Package
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) AddMember(ctx context.Context, packageID int64, userID string) error {
	query :=
		`INSERT INTO package_members (package_id, user_id)
		 VALUES ($1, $2)`

	_, err := r.db.ExecContext(ctx, query, packageID, userID)
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

func (r *PostgresRepository) RemoveMember(ctx context.Context, packageID int64, userID string) error {
	query :=
		`DELETE FROM package_members
		 WHERE package_id = $1 AND user_id = $2`

	if _, err := r.db.ExecContext(ctx, query, packageID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) IsMember(ctx context.Context, packageID int64, userID string) (bool, error) {
	query :=
		`SELECT EXISTS (SELECT 1 FROM package_members
		 WHERE package_id = $1 AND user_id = $2)`

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, packageID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return ok, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, packageID int64) ([]*models.PackageMember, error) {
	query :=
		`SELECT m.package_id, m.user_id, COALESCE(u.email, ''), u.display_name, m.created_at
		 FROM package_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.package_id = $1
		 ORDER BY m.created_at, m.user_id`

	rows, err := r.db.QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.PackageMember
	for rows.Next() {
		var m models.PackageMember
		if err := rows.Scan(&m.PackageID, &m.UserID, &m.Email, &m.DisplayName, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}

	return result, rows.Err()
}
