package service

import (
	"context"
	"sort"

	"github.com/climbing-points/internal/domain"
)

// LoadGlobalStats folds every member record into club totals
func (s *PointsService) LoadGlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("listing users", err)
	}

	var total int64
	for _, u := range users {
		total += u.Points
	}

	return &domain.GlobalStats{
		TotalMembers: len(users),
		TotalPoints:  total,
		TotalTickets: domain.Tickets(total, s.config.PointsPerTicket()),
	}, nil
}

// LoadLeaderboard returns every member with a positive balance, highest
// first, with their lottery win counts. Equal balances keep store order.
func (s *PointsService) LoadLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("listing users", err)
	}

	wins, err := s.GetAllLotteryWinCounts(ctx)
	if err != nil {
		return nil, err
	}

	ratio := s.config.PointsPerTicket()
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for _, u := range users {
		if u.Points <= 0 {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Points:      u.Points,
			Tickets:     domain.Tickets(u.Points, ratio),
			RouteCount:  len(u.Routes),
			LotteryWins: wins[u.ID].Count,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Points > entries[j].Points
	})
	for i := range entries {
		entries[i].Rank = int64(i + 1)
	}
	return entries, nil
}

// GetTopN returns the first n leaderboard entries, capped at the
// configured maximum. n <= 0 returns the whole leaderboard.
func (s *PointsService) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	entries, err := s.LoadLeaderboard(ctx)
	if err != nil || n <= 0 {
		return entries, err
	}

	if s.limits.MaxLimit > 0 && n > s.limits.MaxLimit {
		n = s.limits.MaxLimit
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// PublishSnapshot recomputes stats and leaderboard and hands them to the hub
func (s *PointsService) PublishSnapshot(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}

	stats, err := s.LoadGlobalStats(ctx)
	if err != nil {
		return err
	}
	entries, err := s.LoadLeaderboard(ctx)
	if err != nil {
		return err
	}

	s.hub.BroadcastStats(*stats)
	s.hub.BroadcastLeaderboard(entries)
	return nil
}
