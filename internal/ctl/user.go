package ctl

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newUserCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(newUserCreateCommand(open))
	return cmd
}

func newUserCreateCommand(open Opener) *cobra.Command {
	var (
		email    string
		name     string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user and print an access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				u, err := b.CreateUser(ctx, email, name)
				if err != nil {
					return err
				}
				token, err := b.IssueToken(u, validity)
				if err != nil {
					return fmt.Errorf("issue token: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:    %s\n", u.ID)
				fmt.Fprintf(out, "token: %s\n", token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().DurationVar(&validity, "validity", 0, "token validity, the server default when zero")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
