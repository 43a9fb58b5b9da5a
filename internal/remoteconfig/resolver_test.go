package remoteconfig

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeSource struct {
	values map[string]string
	err    error
	calls  int
	block  bool
}

func (f *fakeSource) Fetch(ctx context.Context) (map[string]string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.values, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolverUsesDefaultsBeforeLoad(t *testing.T) {
	r := NewResolver(&fakeSource{}, DefaultValues(10), time.Second, testLogger())

	if r.Loaded() {
		t.Fatal("resolver should not be loaded yet")
	}
	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want 10", got)
	}
	if got := len(r.GradeOptions()); got != 4 {
		t.Errorf("grade options = %d, want 4", got)
	}
	if p, ok := r.GradePoints("V4-V5"); !ok || p != 5 {
		t.Errorf("GradePoints(V4-V5) = %d, %v", p, ok)
	}
}

func TestResolverLoadsRemoteValuesOnce(t *testing.T) {
	src := &fakeSource{values: map[string]string{
		KeyPointsPerTicket: "20",
		KeyScoreBoard:      `[{"grade":"V0","points":1},{"grade":"V10","points":13}]`,
		KeyBonusOptions:    `[{"id":"clean","label":"Cleaned holds","points":2}]`,
	}}
	r := NewResolver(src, DefaultValues(10), time.Second, testLogger())

	r.Load(context.Background())
	r.Load(context.Background())

	if src.calls != 1 {
		t.Errorf("source fetched %d times, want 1", src.calls)
	}
	if !r.Loaded() {
		t.Fatal("resolver should be loaded")
	}
	if got := r.PointsPerTicket(); got != 20 {
		t.Errorf("PointsPerTicket = %d, want 20", got)
	}
	if p, ok := r.GradePoints("V10"); !ok || p != 13 {
		t.Errorf("GradePoints(V10) = %d, %v", p, ok)
	}
	if _, ok := r.GradePoints("V4-V5"); ok {
		t.Error("default grade table should be replaced")
	}
	if b, ok := r.Bonus("clean"); !ok || b.Points != 2 {
		t.Errorf("Bonus(clean) = %+v, %v", b, ok)
	}
	if v, ok := r.Resolve(KeyPointsPerTicket); !ok || v != "20" {
		t.Errorf("Resolve = %q, %v", v, ok)
	}
}

func TestResolverFallsBackOnFetchError(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	r := NewResolver(src, DefaultValues(10), time.Second, testLogger())

	r.Load(context.Background())

	if !r.Loaded() {
		t.Fatal("a failed fetch still counts as loaded")
	}
	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want default 10", got)
	}
	if _, ok := r.Resolve(KeyPointsPerTicket); ok {
		t.Error("Resolve should report nothing after a failed fetch")
	}
}

func TestResolverIgnoresInvalidValues(t *testing.T) {
	src := &fakeSource{values: map[string]string{
		KeyPointsPerTicket: "zero",
		KeyScoreBoard:      "   ",
		KeyBonusOptions:    "{not json",
	}}
	r := NewResolver(src, DefaultValues(10), time.Second, testLogger())
	r.Load(context.Background())

	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want 10", got)
	}
	if got := len(r.GradeOptions()); got != 4 {
		t.Errorf("grade options = %d, want defaults", got)
	}
	if _, ok := r.Bonus("team"); !ok {
		t.Error("default bonus table should be kept")
	}
}

func TestResolverNegativeRatioIgnored(t *testing.T) {
	src := &fakeSource{values: map[string]string{KeyPointsPerTicket: "-3"}}
	r := NewResolver(src, DefaultValues(10), time.Second, testLogger())
	r.Load(context.Background())

	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want 10", got)
	}
}

func TestResolverDoesNotBlockOnSlowSource(t *testing.T) {
	src := &fakeSource{block: true}
	r := NewResolver(src, DefaultValues(10), 20*time.Millisecond, testLogger())

	done := make(chan struct{})
	go func() {
		r.Load(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Load blocked past its fetch timeout")
	}
	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want 10", got)
	}
}

func TestResolverWithoutSource(t *testing.T) {
	r := NewResolver(nil, DefaultValues(0), time.Second, testLogger())
	r.Load(context.Background())

	if !r.Loaded() {
		t.Fatal("defaults-only resolver should be loaded")
	}
	if got := r.PointsPerTicket(); got != 10 {
		t.Errorf("PointsPerTicket = %d, want 10", got)
	}
}

func TestTablesAreCopies(t *testing.T) {
	r := NewResolver(nil, DefaultValues(10), time.Second, testLogger())
	grades := r.GradeOptions()
	grades[0].Points = 99

	if p, _ := r.GradePoints(grades[0].Grade); p == 99 {
		t.Error("mutating returned table leaked into resolver")
	}
}
