package grpcserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestLoggingUnary_FieldsAndPassthrough(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	ic := LoggingUnary(log)
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.UnaryServerInfo{FullMethod: "/identity.Test/Method"}

	resp, err := ic(ctx, "req", info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	wantErr := errors.New("boom")
	_, err = ic(ctx, "req", info, func(context.Context, any) (any, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)

	entries := logs.All()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "identity.Test", ok["service"])
	require.Equal(t, "Method", ok["method"])
	require.Equal(t, "OK", ok["code"])
	require.Equal(t, "127.0.0.1:12345", ok["peer"])
	require.NotContains(t, ok, "rejected")

	// a plain error surfaces as codes.Unknown
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, "Unknown", entries[1].ContextMap()["code"])
}

func TestLoggingUnary_Levels(t *testing.T) {
	t.Parallel()

	log, logs := observed()
	ic := LoggingUnary(log)
	ctx := context.Background()
	user := &grpc.UnaryServerInfo{FullMethod: "/identity.Test/Method"}
	health := &grpc.UnaryServerInfo{FullMethod: healthpb.Health_Check_FullMethodName}

	fail := func(c codes.Code) grpc.UnaryHandler {
		return func(context.Context, any) (any, error) { return nil, status.Error(c, "x") }
	}
	okHandler := func(context.Context, any) (any, error) { return "ok", nil }

	_, _ = ic(ctx, nil, user, fail(codes.Unauthenticated))
	_, _ = ic(ctx, nil, user, fail(codes.Unavailable))
	_, _ = ic(ctx, nil, health, okHandler)
	_, _ = ic(ctx, nil, health, fail(codes.NotFound))

	entries := logs.All()
	require.Len(t, entries, 4)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, true, entries[0].ContextMap()["rejected"])
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	require.Equal(t, zapcore.DebugLevel, entries[2].Level)
	require.Equal(t, "grpc.health.v1.Health", entries[2].ContextMap()["service"])
	require.Equal(t, zapcore.WarnLevel, entries[3].Level)
}

func TestLoggingUnary_DebugSuppressedAtInfo(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	ic := LoggingUnary(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: healthpb.Health_Check_FullMethodName}

	_, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Zero(t, logs.Len())
}

func TestRecoverUnary_CatchesPanic(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/identity.Test/Panic"}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) {
		panic("oh no")
	})
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestRecoverUnary_NoPanicPassThrough(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/identity.Test/Ok"}

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func TestSplitMethod(t *testing.T) {
	t.Parallel()

	svc, m := splitMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", svc)
	require.Equal(t, "Check", m)

	svc, m = splitMethod("garbage")
	require.Empty(t, svc)
	require.Equal(t, "garbage", m)
}
