// Package remoteconfig resolves the tunable accounting constants. Values are
// fetched once from a remote key/value source and frozen; any failure leaves
// the hardcoded defaults in place.
package remoteconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/climbing-points/internal/domain"
)

// Remote keys
const (
	KeyPointsPerTicket = "POINTS_PER_TICKET"
	KeyScoreBoard      = "SCORE_BOARD"
	KeyBonusOptions    = "BONUS_OPTIONS"
)

// Source fetches raw remote values
type Source interface {
	Fetch(ctx context.Context) (map[string]string, error)
}

// Defaults are the values used whenever the remote source has nothing usable
type Defaults struct {
	PointsPerTicket int64
	GradeOptions    []domain.GradeOption
	BonusOptions    []domain.BonusOption
}

// DefaultValues returns the built-in defaults with the given ticket ratio
func DefaultValues(pointsPerTicket int64) Defaults {
	if pointsPerTicket <= 0 {
		pointsPerTicket = 10
	}
	return Defaults{
		PointsPerTicket: pointsPerTicket,
		GradeOptions:    domain.DefaultGradeOptions(),
		BonusOptions:    domain.DefaultBonusOptions(),
	}
}

type snapshot struct {
	raw             map[string]string
	pointsPerTicket int64
	gradeOptions    []domain.GradeOption
	bonusOptions    []domain.BonusOption
}

// Resolver serves configuration values. It is safe for concurrent use.
type Resolver struct {
	source   Source // nil means defaults only
	defaults Defaults
	timeout  time.Duration
	logger   *slog.Logger

	once    sync.Once
	loaded  atomic.Bool
	current atomic.Pointer[snapshot]
}

// NewResolver creates a resolver. A nil source runs in defaults-only mode.
func NewResolver(source Source, defaults Defaults, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	r := &Resolver{
		source:   source,
		defaults: defaults,
		timeout:  timeout,
		logger:   logger,
	}
	r.current.Store(r.build(nil))
	return r
}

// Load fetches the remote values once per process. Later calls are no-ops.
func (r *Resolver) Load(ctx context.Context) {
	r.once.Do(func() {
		raw, err := r.fetch(ctx)
		if err != nil {
			r.logger.Warn("remote config unavailable, using defaults", "error", err)
		}
		snap := r.build(raw)
		snap.raw = raw
		r.current.Store(snap)
		r.loaded.Store(true)
		r.logger.Info("remote config loaded",
			"points_per_ticket", snap.pointsPerTicket,
			"grades", len(snap.gradeOptions),
			"bonus_options", len(snap.bonusOptions),
		)
	})
}

// Loaded reports whether Load has completed
func (r *Resolver) Loaded() bool {
	return r.loaded.Load()
}

func (r *Resolver) fetch(ctx context.Context) (map[string]string, error) {
	if r.source == nil {
		return nil, fmt.Errorf("%w: no remote source configured", domain.ErrConfigUnavailable)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.source.Fetch(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigUnavailable, err)
	}
	return raw, nil
}

func (r *Resolver) build(raw map[string]string) *snapshot {
	snap := &snapshot{
		pointsPerTicket: r.defaults.PointsPerTicket,
		gradeOptions:    r.defaults.GradeOptions,
		bonusOptions:    r.defaults.BonusOptions,
	}
	if raw == nil {
		return snap
	}

	if v, ok := raw[KeyPointsPerTicket]; ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && n > 0 {
			snap.pointsPerTicket = n
		} else {
			r.logger.Warn("ignoring invalid remote value", "key", KeyPointsPerTicket, "value", v)
		}
	}

	if grades, ok := parseTable[domain.GradeOption](raw, KeyScoreBoard, r.logger); ok {
		snap.gradeOptions = grades
	}
	if bonuses, ok := parseTable[domain.BonusOption](raw, KeyBonusOptions, r.logger); ok {
		snap.bonusOptions = bonuses
	}
	return snap
}

// parseTable decodes a JSON-encoded table; blank, invalid or empty values
// are rejected so the caller keeps its default.
func parseTable[T any](raw map[string]string, key string, logger *slog.Logger) ([]T, bool) {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil, false
	}
	var table []T
	if err := json.Unmarshal([]byte(v), &table); err != nil || len(table) == 0 {
		logger.Warn("ignoring invalid remote table", "key", key, "error", err)
		return nil, false
	}
	return table, true
}

// Resolve returns the raw remote value for key, if one was fetched
func (r *Resolver) Resolve(key string) (string, bool) {
	v, ok := r.current.Load().raw[key]
	return v, ok
}

// PointsPerTicket returns the points-to-ticket ratio
func (r *Resolver) PointsPerTicket() int64 {
	return r.current.Load().pointsPerTicket
}

// GradeOptions returns the grade table
func (r *Resolver) GradeOptions() []domain.GradeOption {
	return append([]domain.GradeOption(nil), r.current.Load().gradeOptions...)
}

// BonusOptions returns the bonus activity table
func (r *Resolver) BonusOptions() []domain.BonusOption {
	return append([]domain.BonusOption(nil), r.current.Load().bonusOptions...)
}

// GradePoints looks up the base points for a grade label
func (r *Resolver) GradePoints(grade string) (int64, bool) {
	for _, g := range r.current.Load().gradeOptions {
		if g.Grade == grade {
			return g.Points, true
		}
	}
	return 0, false
}

// Bonus looks up a bonus activity by id
func (r *Resolver) Bonus(id string) (domain.BonusOption, bool) {
	for _, b := range r.current.Load().bonusOptions {
		if b.ID == id {
			return b, true
		}
	}
	return domain.BonusOption{}, false
}
