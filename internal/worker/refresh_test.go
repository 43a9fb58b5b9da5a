package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/climbing-points/internal/config"
)

type countingPublisher struct {
	calls atomic.Int32
	err   error
}

func (p *countingPublisher) PublishSnapshot(context.Context) error {
	p.calls.Add(1)
	return p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRefreshWorkerPublishesOnInterval(t *testing.T) {
	pub := &countingPublisher{}
	w := NewRefreshWorker(pub, &config.RefreshConfig{Interval: 10 * time.Millisecond, Enabled: true}, testLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !w.IsRunning() {
		t.Error("worker should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("published %d times, want at least 3", pub.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if w.IsRunning() {
		t.Error("worker should be stopped")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestRefreshWorkerSurvivesPublishErrors(t *testing.T) {
	pub := &countingPublisher{err: errors.New("store down")}
	w := NewRefreshWorker(pub, &config.RefreshConfig{Interval: time.Hour}, testLogger())

	w.RunOnce(context.Background())
	w.RunOnce(context.Background())
	if pub.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", pub.calls.Load())
	}
}
