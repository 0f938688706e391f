package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/config"
	"github.com/felipepmaragno/agentrouter/internal/cost"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUsageTestApp(cfg *config.Config) *app {
	cfg.UsageBufferSize = 8
	cfg.UsageTimeout = time.Second
	return &app{cfg: cfg, logger: zap.NewNop(), tracker: cost.NewInMemoryTracker()}
}

func TestInitUsage_DatabaseReplacesTracker(t *testing.T) {
	ctx := context.Background()
	a := newUsageTestApp(&config.Config{SQLitePath: filepath.Join(t.TempDir(), "usage.db")})
	require.NoError(t, a.initUsage(ctx))
	t.Cleanup(a.Close)

	require.Len(t, a.sinks, 1)
	a.recorder.Record(ctx, domain.UsageRecord{ID: "rec-1", ModelUsed: "B", Cost: 0.003, CreatedAt: time.Now()})

	assert.Zero(t, a.tracker.Len())
	records, err := a.usageReader().Since(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec-1", records[0].ID)
}

func TestInitUsage_TrackerWithoutDatabase(t *testing.T) {
	ctx := context.Background()
	a := newUsageTestApp(&config.Config{})
	require.NoError(t, a.initUsage(ctx))
	t.Cleanup(a.Close)

	require.Len(t, a.sinks, 1)
	a.recorder.Record(ctx, domain.UsageRecord{ID: "rec-1", ModelUsed: "B", CreatedAt: time.Now()})

	assert.Equal(t, 1, a.tracker.Len())
	total, err := a.costReader().TotalCost(ctx, "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, total)
}
