package ctl

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/signoff/internal/server/models"
	"github.com/spf13/cobra"
)

func newRequestCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Inspect and decide approval requests",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <id>",
			Short: "Show the state of a request",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseRequestID(args[0])
				if err != nil {
					return err
				}
				return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
					r, err := b.GetRequest(ctx, id)
					if err != nil {
						return err
					}
					printRequest(cmd.OutOrStdout(), r)
					return nil
				})
			},
		},
		newRequestRejectCommand(open),
		&cobra.Command{
			Use:   "evaluate <id>",
			Short: "Recompute quorum and approve the request if it is met",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseRequestID(args[0])
				if err != nil {
					return err
				}
				return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
					ev, err := b.EvaluateRequest(ctx, id)
					if err != nil {
						return err
					}
					printEvaluation(cmd.OutOrStdout(), ev)
					return nil
				})
			},
		},
	)

	return cmd
}

func newRequestRejectCommand(open Opener) *cobra.Command {
	var actingUserID string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending request on behalf of a package member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, open, func(ctx context.Context, b Backend) error {
				r, err := b.RejectRequest(ctx, actingUserID, id)
				if err != nil {
					return err
				}
				printRequest(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actingUserID, "as", "", "id of the member rejecting (required)")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func parseRequestID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid request id %q", s)
	}
	return id, nil
}

func printRequest(w io.Writer, r *models.ApprovalRequest) {
	fmt.Fprintf(w, "request %d (package %d): %s\n", r.ID, r.PackageID, r.Status)
	fmt.Fprintf(w, "title:   %s\n", r.Title)
	fmt.Fprintf(w, "created: %s\n", r.CreatedAt.UTC().Format(time.RFC3339))
	if r.DecidedAt != nil {
		fmt.Fprintf(w, "decided: %s\n", r.DecidedAt.UTC().Format(time.RFC3339))
	}
}

func printEvaluation(w io.Writer, ev *models.Evaluation) {
	fmt.Fprintf(w, "request %d: %s\n", ev.RequestID, ev.Status)
	fmt.Fprintf(w, "required groups:  %v\n", ev.RequiredGroups)
	fmt.Fprintf(w, "satisfied groups: %v\n", ev.SatisfiedGroups)
	fmt.Fprintf(w, "quorum met: %t\n", ev.QuorumMet)
	if ev.Transitioned {
		fmt.Fprintln(w, "request approved")
	}
}
