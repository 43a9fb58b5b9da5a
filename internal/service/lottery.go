package service

import (
	"context"
	"fmt"

	"github.com/climbing-points/internal/domain"
)

// Balance is a points/tickets pair
type Balance struct {
	Points  int64 `json:"points"`
	Tickets int64 `json:"tickets"`
}

// ConsumeResult is returned after tickets are spent on a draw
type ConsumeResult struct {
	PointsDeducted int64              `json:"points_deducted"`
	TicketsUsed    int64              `json:"tickets_used"`
	Win            *domain.LotteryWin `json:"win,omitempty"`
	// CallerBalance is set when the winner is the caller; it is derived
	// locally from the pre-debit balance rather than reloaded.
	CallerBalance *Balance `json:"caller_balance,omitempty"`
	Simulated     bool     `json:"simulated,omitempty"`
}

// ConsumeTicket spends tickets of the member identified by identityKey
// (email, display name or id) and records the lottery win.
func (s *PointsService) ConsumeTicket(
	ctx context.Context,
	caller *domain.Identity,
	identityKey string,
	tickets int64,
	contest domain.ContestDetails,
) (*ConsumeResult, error) {
	if caller == nil {
		return nil, domain.ErrUnauthenticated
	}
	if tickets <= 0 {
		tickets = 1
	}

	if tickets > domain.MaxTicketsPerDraw {
		return nil, fmt.Errorf("%w: at most %d tickets per draw", domain.ErrInvalidRequest, domain.MaxTicketsPerDraw)
	}

	ratio := s.config.PointsPerTicket()
	pointsToDeduct, ok := domain.MulPoints(tickets, ratio)
	if !ok {
		return nil, fmt.Errorf("%w: %d tickets exceed the point range", domain.ErrInvalidRequest, tickets)
	}

	if caller.IsOffline() {
		s.logger.Info("simulated ticket consumption", "user_key", identityKey, "tickets", tickets)
		return &ConsumeResult{
			PointsDeducted: pointsToDeduct,
			TicketsUsed:    tickets,
			Simulated:      true,
		}, nil
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeError("listing users", err)
	}

	target := resolveIdentity(users, identityKey)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, identityKey)
	}

	if target.Points < pointsToDeduct {
		return nil, fmt.Errorf("%w: need %d points, have %d",
			domain.ErrInsufficientBalance, pointsToDeduct, target.Points)
	}

	if err := s.store.DebitPoints(ctx, target.ID, pointsToDeduct); err != nil {
		return nil, storeError("debiting points", err)
	}

	now := s.now()
	participants := contest.ParticipantsList
	if participants == nil {
		participants = []string{}
	}
	win := domain.LotteryWin{
		ID:             s.newID(),
		UserID:         target.ID,
		UserEmail:      target.Email,
		UserName:       target.Name,
		Timestamp:      now.UTC(),
		TimestampMs:    now.UnixMilli(),
		PointsConsumed: pointsToDeduct,
		TicketsUsed:    tickets,
		WinType:        domain.WinTypeWheelLottery,
		Details: domain.ContestDetails{
			TotalParticipants: contest.TotalParticipants,
			TotalTickets:      contest.TotalTickets,
			ParticipantsList:  participants,
		},
	}
	if err := s.store.AddLotteryWin(ctx, win); err != nil {
		return nil, storeError("recording lottery win", err)
	}

	s.logger.Info("tickets consumed",
		"user_id", target.ID,
		"tickets", tickets,
		"points", pointsToDeduct,
		"win_id", win.ID,
	)

	result := &ConsumeResult{
		PointsDeducted: pointsToDeduct,
		TicketsUsed:    tickets,
		Win:            &win,
	}
	if isSelf(caller, identityKey, target) {
		remaining := max(target.Points-pointsToDeduct, 0)
		result.CallerBalance = &Balance{
			Points:  remaining,
			Tickets: domain.Tickets(remaining, ratio),
		}
	}

	s.refreshViews(ctx)
	return result, nil
}

// resolveIdentity finds the member matching key by email, display name or
// id. The first match in store order wins, so two members sharing a display
// name resolve to whichever the store lists first.
func resolveIdentity(users []domain.User, key string) *domain.User {
	for i := range users {
		u := &users[i]
		if u.Email == key || u.Name == key || u.ID == key {
			return u
		}
	}
	return nil
}

func isSelf(caller *domain.Identity, key string, target *domain.User) bool {
	if caller.ID == target.ID {
		return true
	}
	return caller.Email != "" && (caller.Email == key || caller.Email == target.Email)
}

// GetLotteryWinCount counts the wins recorded for a user id or email
func (s *PointsService) GetLotteryWinCount(ctx context.Context, userKey string) (int, error) {
	wins, err := s.store.ListLotteryWins(ctx)
	if err != nil {
		return 0, storeError("listing lottery wins", err)
	}

	count := 0
	for i := range wins {
		if wins[i].Matches(userKey) {
			count++
		}
	}
	return count, nil
}

// GetAllLotteryWinCounts groups every recorded win by user id
func (s *PointsService) GetAllLotteryWinCounts(ctx context.Context) (map[string]domain.WinCount, error) {
	wins, err := s.store.ListLotteryWins(ctx)
	if err != nil {
		return nil, storeError("listing lottery wins", err)
	}

	counts := make(map[string]domain.WinCount)
	for _, w := range wins {
		c, ok := counts[w.UserID]
		if !ok {
			c = domain.WinCount{Email: w.UserEmail, Name: w.UserName}
		}
		c.Count++
		counts[w.UserID] = c
	}
	return counts, nil
}
