package api

import (
	"context"
	"errors"

	"github.com/matheus3301/rentchat/internal/engine"
	"github.com/matheus3301/rentchat/internal/loop"
	"github.com/matheus3301/rentchat/internal/outbox"
	"github.com/matheus3301/rentchat/internal/rest"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// toStatus maps engine errors to gRPC status errors.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, outbox.ErrNotConnected), errors.Is(err, loop.ErrStopped):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, outbox.ErrEmptyBody):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, outbox.ErrUnknownSend):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, outbox.ErrNotFailed), errors.Is(err, engine.ErrNoREST):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return grpcstatus.Error(codes.FailedPrecondition, err.Error())
		}
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.FromContextError(err).Err()
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}

func requireConversation(id string) error {
	if id == "" {
		return grpcstatus.Error(codes.InvalidArgument, "conversation_id is required")
	}
	return nil
}
