package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func TestHealthService_Refresh(t *testing.T) {
	s := NewHealthService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	st, err := s.Check(ctx, PipelineServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st, "not serving until the first refresh")

	storeErr := error(nil)
	s.AddProbe("store", func(context.Context) error { return storeErr })
	s.AddProbe("nats", func(context.Context) error { return nil })

	assert.Empty(t, s.Refresh(ctx))
	for _, svc := range []string{"", PipelineServiceName} {
		st, err := s.Check(ctx, svc)
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, st)
	}

	storeErr = errors.New("database is locked")
	assert.Equal(t, []string{"store"}, s.Refresh(ctx))
	st, err = s.Check(ctx, PipelineServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)
}

func TestHealthService_UnknownService(t *testing.T) {
	s := NewHealthService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := s.Check(context.Background(), "other.Service")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHealthService_Shutdown(t *testing.T) {
	s := NewHealthService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Refresh(context.Background())
	s.Shutdown()
	s.Refresh(context.Background())

	st, err := s.Check(context.Background(), PipelineServiceName)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, st)
}
