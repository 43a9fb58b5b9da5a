package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
	"github.com/google/uuid"
)

// Store is the document store holding member records and lottery wins.
// Balance changes must be applied atomically by the store itself.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	EnsureUser(ctx context.Context, identity domain.Identity) (*domain.User, error)
	AddRoute(ctx context.Context, identity domain.Identity, record domain.RouteRecord) error
	RemoveRoute(ctx context.Context, userID string, record domain.RouteRecord) error
	DebitPoints(ctx context.Context, userID string, points int64) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	AddLotteryWin(ctx context.Context, win domain.LotteryWin) error
	ListLotteryWins(ctx context.Context) ([]domain.LotteryWin, error)
}

// BlobStore keeps uploaded photos and returns a public URL for them
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, size int64, body io.Reader) (string, error)
}

// ConfigResolver provides the tunable accounting values
type ConfigResolver interface {
	PointsPerTicket() int64
	GradePoints(grade string) (int64, bool)
	Bonus(id string) (domain.BonusOption, bool)
}

// Notifier receives refreshed derived views after every mutation
type Notifier interface {
	BroadcastLeaderboard(entries []domain.LeaderboardEntry)
	BroadcastStats(stats domain.GlobalStats)
}

// PointsService runs the points, ticket and lottery workflows
type PointsService struct {
	store  Store
	blobs  BlobStore
	config ConfigResolver
	limits *config.LeaderboardConfig
	hub    Notifier
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewPointsService creates a new points service. blobs may be nil, in
// which case photo submissions fail with ErrUploadFailed.
func NewPointsService(
	store Store,
	blobs BlobStore,
	resolver ConfigResolver,
	limits *config.LeaderboardConfig,
	logger *slog.Logger,
) *PointsService {
	return &PointsService{
		store:  store,
		blobs:  blobs,
		config: resolver,
		limits: limits,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// SetHub sets the notifier that receives refreshed views
func (s *PointsService) SetHub(hub Notifier) {
	s.hub = hub
}

// LoadUserData returns the caller's view, creating an empty member record
// on first sight.
func (s *PointsService) LoadUserData(ctx context.Context, caller *domain.Identity) (*domain.UserView, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}

	user, err := s.store.EnsureUser(ctx, *caller)
	if err != nil {
		return nil, storeError("loading user", err)
	}

	wins, err := s.winsFor(ctx, caller.ID, caller.Email)
	if err != nil {
		return nil, err
	}

	view := domain.NewUserView(user, s.config.PointsPerTicket(), wins)
	return &view, nil
}

// winsFor counts wins recorded under either the member id or email
func (s *PointsService) winsFor(ctx context.Context, userID, email string) (int, error) {
	wins, err := s.store.ListLotteryWins(ctx)
	if err != nil {
		return 0, storeError("listing lottery wins", err)
	}

	count := 0
	for i := range wins {
		if wins[i].UserID == userID || (email != "" && wins[i].UserEmail == email) {
			count++
		}
	}
	return count, nil
}

// reloadView reads the authoritative state of userID after a commit
func (s *PointsService) reloadView(ctx context.Context, userID string, ratio int64) (*domain.UserView, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, storeError("reloading user", err)
	}

	wins, err := s.winsFor(ctx, userID, user.Email)
	if err != nil {
		return nil, err
	}

	view := domain.NewUserView(user, ratio, wins)
	return &view, nil
}

// refreshViews pushes fresh stats and leaderboard to subscribers. Failures
// are logged; the mutation that triggered the refresh has already committed.
func (s *PointsService) refreshViews(ctx context.Context) {
	if err := s.PublishSnapshot(ctx); err != nil {
		s.logger.Warn("failed to refresh derived views", "error", err)
	}
}

// storeError keeps domain conditions reported by the store and classifies
// everything else as the store being unavailable.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRouteNotFound),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrStoreUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
}
