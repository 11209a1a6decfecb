package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wattbridge/ecoflow-bridge/internal/coordinator"
	"github.com/wattbridge/ecoflow-bridge/internal/ecoflow"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/config"
	"github.com/wattbridge/ecoflow-bridge/internal/infrastructure/logging"
)

func quietLogger() *logging.Logger {
	return logging.New(config.Logging{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func TestFatalStartError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"authentication", ecoflow.ErrAuthentication, true},
		{"wrapped authentication", fmt.Errorf("starting: %w", ecoflow.ErrAuthentication), true},
		{"unauthorized api error", &ecoflow.APIError{HTTPStatus: 401, Message: "bad key"}, true},
		{"connection failure", ecoflow.ErrConnection, false},
		{"update failure", coordinator.ErrUpdateFailed, false},
		{"server error", &ecoflow.APIError{HTTPStatus: 502, Message: "bad gateway"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fatalStartError(tt.err); got != tt.want {
				t.Errorf("fatalStartError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// fakePruner counts prune calls and records the retention it was given.
type fakePruner struct {
	mu        sync.Mutex
	calls     int
	olderThan time.Duration
}

func (f *fakePruner) PruneHistory(_ context.Context, olderThan time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.olderThan = olderThan
	return 1, nil
}

func (f *fakePruner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPruneHistoryRunsPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pruner := &fakePruner{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		pruneHistory(ctx, pruner, 30*24*time.Hour, 5*time.Millisecond, quietLogger())
	}()

	deadline := time.After(2 * time.Second)
	for pruner.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("prune calls = %d, want at least 3", pruner.count())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneHistory did not stop on context cancel")
	}

	pruner.mu.Lock()
	defer pruner.mu.Unlock()
	if pruner.olderThan != 30*24*time.Hour {
		t.Errorf("olderThan = %v, want %v", pruner.olderThan, 30*24*time.Hour)
	}
}
