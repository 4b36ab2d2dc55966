package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coachpo/orderlens/internal/config"
	"github.com/coachpo/orderlens/internal/pipeline"
	"github.com/coachpo/orderlens/internal/poller"
)

type staticRunner struct{}

func (staticRunner) Run(context.Context, uint64) (*pipeline.Snapshot, error) {
	return &pipeline.Snapshot{}, nil
}

func (staticRunner) Commit(*pipeline.Snapshot) {}

func TestWaitForTimesOut(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	block := make(chan struct{})
	defer close(block)
	require.ErrorIs(t, waitFor(ctx, func() { <-block }), context.DeadlineExceeded)
	require.NoError(t, waitFor(context.Background(), func() {}))
}

func TestGracefulShutdownStopsServerAndPoller(t *testing.T) {
	p := poller.New(staticRunner{}, poller.Config{Interval: time.Hour})
	require.NoError(t, p.Start(context.Background()))

	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	server := buildServer(cfg, p, zap.NewNop())
	require.Equal(t, cfg.ReadHeaderTimeout, server.ReadHeaderTimeout)

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var lifecycle conc.WaitGroup
	startServer(&lifecycle, zap.NewNop(), server, func() {})

	performGracefulShutdown(context.Background(), zap.NewNop(), gracefulShutdownConfig{
		server:    server,
		lifecycle: &lifecycle,
		poller:    p,
	})
	require.ErrorIs(t, p.Start(context.Background()), poller.ErrStopped)
}
