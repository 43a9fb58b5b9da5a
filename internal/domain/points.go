package domain

import "math"

// Upper bounds on caller-supplied amounts
const (
	MaxCustomGradePoints int64 = 1000
	MaxTicketsPerDraw    int64 = 1000000
)

// GradeOption maps a grade label to its base points
type GradeOption struct {
	Grade  string `json:"grade"`
	Points int64  `json:"points"`
}

// BonusOption is an extra activity that adds points to a submission
type BonusOption struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Points int64  `json:"points"`
}

// DefaultGradeOptions is the four-tier table used when no remote table is set
func DefaultGradeOptions() []GradeOption {
	return []GradeOption{
		{Grade: "VB-V1", Points: 2},
		{Grade: "V2-V3", Points: 3},
		{Grade: "V4-V5", Points: 5},
		{Grade: "V6+", Points: 8},
	}
}

// DefaultBonusOptions is the bonus table used when no remote table is set
func DefaultBonusOptions() []BonusOption {
	return []BonusOption{
		{ID: "photo", Label: "Photographed another climber's send", Points: 1},
		{ID: "share", Label: "Shared beta or technique", Points: 1},
		{ID: "help", Label: "Helped another member", Points: 1},
		{ID: "clean", Label: "Cleaned holds or tidied gear", Points: 1},
		{ID: "social", Label: "Checked in on social media", Points: 1},
		{ID: "team", Label: "Completed a team challenge", Points: 3},
	}
}

// Tickets converts a point balance to lottery tickets. A non-positive
// balance or ratio yields zero.
func Tickets(points, ratio int64) int64 {
	if points <= 0 || ratio <= 0 {
		return 0
	}
	return points / ratio
}

// AddPoints returns a+b, or false if the sum does not fit in an int64
func AddPoints(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// MulPoints returns a*b for non-negative operands, or false on overflow
func MulPoints(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, false
	}
	return a * b, true
}

// GlobalStats are club-wide totals
type GlobalStats struct {
	TotalMembers int   `json:"total_members"`
	TotalPoints  int64 `json:"total_points"`
	TotalTickets int64 `json:"total_tickets"`
}

// LeaderboardEntry represents a single entry in the leaderboard
type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Points      int64  `json:"points"`
	Tickets     int64  `json:"tickets"`
	RouteCount  int    `json:"route_count"`
	LotteryWins int    `json:"lottery_wins"`
}
