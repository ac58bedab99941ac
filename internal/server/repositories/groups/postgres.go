package groups

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

func (r *PostgresRepository) Create(ctx context.Context, g *models.ApprovalGroup, actingUserID string) (*models.ApprovalGroup, error) {
	query :=
		`INSERT INTO approval_groups (package_id, name)
		 SELECT p.id, $2 FROM packages p
		 JOIN package_members m ON m.package_id = p.id AND m.user_id = $3
		 WHERE p.id = $1
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, g.PackageID, g.Name, actingUserID).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorForbidden
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return g, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.ApprovalGroup, error) {
	query :=
		`SELECT id, package_id, name, created_at FROM approval_groups
		 WHERE id = $1`

	var g models.ApprovalGroup
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.PackageID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &g, nil
}

func (r *PostgresRepository) ListByPackage(ctx context.Context, packageID int64) ([]*models.ApprovalGroup, error) {
	query :=
		`SELECT id, package_id, name, created_at FROM approval_groups
		 WHERE package_id = $1
		 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ApprovalGroup
	for rows.Next() {
		var g models.ApprovalGroup
		if err := rows.Scan(&g.ID, &g.PackageID, &g.Name, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &g)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) AddMember(ctx context.Context, m *models.GroupMember) error {
	query :=
		`INSERT INTO approval_group_members (group_id, package_id, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query, m.GroupID, m.PackageID, m.UserID).Scan(&m.CreatedAt)
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

func (r *PostgresRepository) RemoveMember(ctx context.Context, groupID int64, userID string) error {
	query :=
		`DELETE FROM approval_group_members
		 WHERE group_id = $1 AND user_id = $2`

	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, groupID int64) ([]*models.GroupMember, error) {
	query :=
		`SELECT gm.group_id, gm.package_id, gm.user_id, COALESCE(u.email, ''), u.display_name, gm.created_at
		 FROM approval_group_members gm
		 JOIN users u ON u.id = gm.user_id
		 WHERE gm.group_id = $1
		 ORDER BY gm.created_at, gm.user_id`

	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.GroupMember
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.PackageID, &m.UserID, &m.Email, &m.DisplayName, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &m)
	}

	return result, rows.Err()
}

func (r *PostgresRepository) FindMembership(ctx context.Context, packageID int64, userID string) (*models.GroupMember, error) {
	query :=
		`SELECT group_id, package_id, user_id, created_at FROM approval_group_members
		 WHERE package_id = $1 AND user_id = $2`

	var m models.GroupMember
	err := r.db.QueryRowContext(ctx, query, packageID, userID).
		Scan(&m.GroupID, &m.PackageID, &m.UserID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return &m, nil
}

func (r *PostgresRepository) ListMemberUserIDs(ctx context.Context, packageID int64) ([]string, error) {
	query :=
		`SELECT user_id FROM approval_group_members
		 WHERE package_id = $1
		 ORDER BY group_id, user_id`

	rows, err := r.db.QueryContext(ctx, query, packageID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}

	return result, rows.Err()
}
