package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	intercept := unaryInterceptor(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/rentchat.v1.ChatService/SendText"}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if status.Code(err) != codes.Internal {
		t.Fatalf("err = %v, want Internal", err)
	}
	if logs.FilterMessage("api handler panic").Len() != 1 {
		t.Error("panic not logged")
	}
}

func TestLogCallLevels(t *testing.T) {
	tests := []struct {
		err  error
		want zapcore.Level
	}{
		{nil, zapcore.DebugLevel},
		{status.Error(codes.NotFound, "no such message"), zapcore.InfoLevel},
		{status.Error(codes.Unavailable, "not connected"), zapcore.InfoLevel},
		{errors.New("disk full"), zapcore.WarnLevel},
	}
	for _, tt := range tests {
		core, logs := observer.New(zapcore.DebugLevel)
		logCall(zap.New(core), "/m", time.Now(), tt.err)
		entries := logs.All()
		if len(entries) != 1 || entries[0].Level != tt.want {
			t.Errorf("logCall(%v) logged %v, want one entry at %v", tt.err, entries, tt.want)
		}
	}
}
