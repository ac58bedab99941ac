package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/signoff/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrorForbidden, codes.PermissionDenied},
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorConflict, codes.AlreadyExists},
	{common.ErrNoCredentials, codes.FailedPrecondition},
	{common.ErrInvalidAuthentication, codes.Unauthenticated},
	{common.ErrReplayDetected, codes.Unauthenticated},
	{common.ErrChallengeExpired, codes.DeadlineExceeded},
	{common.ErrRequestClosed, codes.FailedPrecondition},
}

// toStatus maps a service error to a gRPC status. Unknown errors are logged
// and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, e.err.Error())
		}
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
