// Package ctl implements signoffctl, the operator tool for schema
// migrations, user provisioning and manual request handling.
package ctl

import (
	"context"
	"time"

	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/spf13/cobra"
)

// Backend is the part of a deployment the commands act on.
type Backend interface {
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) error

	CreateUser(ctx context.Context, email, displayName string) (*models.User, error)
	IssueToken(u *models.User, validity time.Duration) (string, error)

	GetRequest(ctx context.Context, requestID int64) (*models.ApprovalRequest, error)
	RejectRequest(ctx context.Context, actingUserID string, requestID int64) (*models.ApprovalRequest, error)
	EvaluateRequest(ctx context.Context, requestID int64) (*models.Evaluation, error)

	Close() error
}

// Opener connects to the deployment a command runs against.
type Opener func(ctx context.Context) (Backend, error)

func NewRootCommand(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "signoffctl",
		Short:         "signoff administration",
		Long:          `Operator tool for the signoff approval service: database migrations, user provisioning and manual handling of approval requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCommand(open),
		newUserCommand(open),
		newRequestCommand(open),
	)

	return root
}

// withBackend opens a backend for the duration of fn.
func withBackend(cmd *cobra.Command, open Opener, fn func(ctx context.Context, b Backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := open(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b)
}
