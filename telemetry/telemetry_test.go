package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/logging"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, logging.NoOpLogger{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_Enabled(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	shutdown, err := Init(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "127.0.0.1:4317",
		ServiceName:  "insightmesh-test",
	}, logging.NoOpLogger{})
	require.NoError(t, err)
	require.NotEqual(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
