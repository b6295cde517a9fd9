package daemon

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// unaryInterceptor logs every call at debug level, failures above that, and
// turns handler panics into Internal errors so one bad request cannot take
// the daemon down.
func unaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("api handler panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
			logCall(logger, info.FullMethod, start, err)
		}()
		return handler(ctx, req)
	}
}

func streamInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		logger.Debug("api stream opened", zap.String("method", info.FullMethod))
		defer func() {
			if r := recover(); r != nil {
				logger.Error("api stream panic",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
			logCall(logger, info.FullMethod, start, err)
		}()
		return handler(srv, ss)
	}
}

// logCall picks the level from the status code: caller mistakes are Info,
// daemon faults are Warn.
func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	level := zapcore.DebugLevel
	switch code {
	case codes.OK, codes.Canceled:
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.Unavailable:
		level = zapcore.InfoLevel
	default:
		level = zapcore.WarnLevel
	}
	if ce := logger.Check(level, "api call"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("code", code.String()),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
	}
}
