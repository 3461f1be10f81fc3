package grpc

import (
	"errors"

	"github.com/dmitrijs2005/cytoguard/internal/common"
	"github.com/dmitrijs2005/cytoguard/internal/validation"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC codes. Rejections carry their
// user-facing message; other failures are not echoed to the client verbatim.
func toStatus(err error) error {
	var rej *validation.Rejection
	switch {
	case errors.As(err, &rej):
		return status.Error(codes.InvalidArgument, rej.Message)
	case errors.Is(err, common.ErrSessionNotFound):
		return status.Error(codes.Unauthenticated, "session expired or unknown")
	case errors.Is(err, common.ErrIntegrity), errors.Is(err, common.ErrCrypto):
		return status.Error(codes.DataLoss, "stored file failed verification")
	case errors.Is(err, common.ErrInference):
		return status.Error(codes.Unavailable, "analysis service unavailable")
	case errors.Is(err, common.ErrStore):
		return status.Error(codes.Unavailable, "temporary storage unavailable")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
