package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
	"github.com/climbing-points/internal/remoteconfig"
)

// memStore implements Store in memory with the same atomicity the
// PostgreSQL adapter provides.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	order  []string
	wins   []domain.LotteryWin
	fail   map[string]error
	writes int
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*domain.User{}, fail: map[string]error{}}
}

func (m *memStore) seed(id, name, email string, points int64, routes ...domain.RouteRecord) {
	m.users[id] = &domain.User{ID: id, Name: name, Email: email, Points: points, Routes: routes}
	m.order = append(m.order, id)
}

func (m *memStore) failing(op string) error {
	return m.fail[op]
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Routes = append([]domain.RouteRecord(nil), u.Routes...)
	return &c
}

// GetUser implements Store.
func (m *memStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("GetUser"); err != nil {
		return nil, err
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// EnsureUser implements Store.
func (m *memStore) EnsureUser(_ context.Context, id domain.Identity) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("EnsureUser"); err != nil {
		return nil, err
	}
	u, ok := m.users[id.ID]
	if !ok {
		m.writes++
		u = &domain.User{ID: id.ID, Name: id.DisplayName, Email: id.Email}
		m.users[id.ID] = u
		m.order = append(m.order, id.ID)
	}
	return cloneUser(u), nil
}

// AddRoute implements Store.
func (m *memStore) AddRoute(_ context.Context, id domain.Identity, record domain.RouteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("AddRoute"); err != nil {
		return err
	}
	m.writes++
	u, ok := m.users[id.ID]
	if !ok {
		m.users[id.ID] = &domain.User{
			ID: id.ID, Name: id.DisplayName, Email: id.Email,
			Points: record.TotalPoints, Routes: []domain.RouteRecord{record},
		}
		m.order = append(m.order, id.ID)
		return nil
	}
	u.Points += record.TotalPoints
	u.Routes = append(u.Routes, record)
	return nil
}

// RemoveRoute implements Store.
func (m *memStore) RemoveRoute(_ context.Context, userID string, record domain.RouteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("RemoveRoute"); err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrRouteNotFound
	}
	want, _ := json.Marshal(record)
	kept := u.Routes[:0:0]
	found := false
	for _, r := range u.Routes {
		got, _ := json.Marshal(r)
		if string(got) == string(want) {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return domain.ErrRouteNotFound
	}
	m.writes++
	u.Routes = kept
	u.Points -= record.TotalPoints
	return nil
}

// DebitPoints implements Store.
func (m *memStore) DebitPoints(_ context.Context, userID string, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("DebitPoints"); err != nil {
		return err
	}
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.Points < points {
		return domain.ErrInsufficientBalance
	}
	m.writes++
	u.Points -= points
	return nil
}

// ListUsers implements Store.
func (m *memStore) ListUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("ListUsers"); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(m.order))
	for _, id := range m.order {
		users = append(users, *cloneUser(m.users[id]))
	}
	return users, nil
}

// AddLotteryWin implements Store.
func (m *memStore) AddLotteryWin(_ context.Context, win domain.LotteryWin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("AddLotteryWin"); err != nil {
		return err
	}
	m.writes++
	m.wins = append(m.wins, win)
	return nil
}

// ListLotteryWins implements Store.
func (m *memStore) ListLotteryWins(_ context.Context) ([]domain.LotteryWin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing("ListLotteryWins"); err != nil {
		return nil, err
	}
	return append([]domain.LotteryWin(nil), m.wins...), nil
}

func (m *memStore) user(t *testing.T, id string) *domain.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		t.Fatalf("user %q not in store", id)
	}
	return cloneUser(u)
}

// fakeBlobs implements BlobStore.
type fakeBlobs struct {
	keys []string
	err  error
}

func (f *fakeBlobs) Upload(_ context.Context, key, _ string, _ int64, body io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://cdn.example.com/" + key, nil
}

// recordingHub implements Notifier.
type recordingHub struct {
	mu          sync.Mutex
	stats       []domain.GlobalStats
	leaderboard [][]domain.LeaderboardEntry
}

func (h *recordingHub) BroadcastLeaderboard(entries []domain.LeaderboardEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaderboard = append(h.leaderboard, entries)
}

func (h *recordingHub) BroadcastStats(stats domain.GlobalStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = append(h.stats, stats)
}

var fixedTime = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *memStore, blobs BlobStore) *PointsService {
	t.Helper()
	resolver := remoteconfig.NewResolver(nil, remoteconfig.DefaultValues(10), time.Second, testLogger())
	limits := &config.LeaderboardConfig{MaxLimit: 1000}
	svc := NewPointsService(store, blobs, resolver, limits, testLogger())
	svc.now = func() time.Time { return fixedTime }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

func member(id string) *domain.Identity {
	return &domain.Identity{
		ID:          id,
		DisplayName: "Member " + id,
		Email:       id + "@example.com",
		Provider:    domain.ProviderGoogle,
	}
}

func assertRoutesEqual(t *testing.T, got, want []domain.RouteRecord) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("routes = %+v, want %+v", got, want)
	}
}
