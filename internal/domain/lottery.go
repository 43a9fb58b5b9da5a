package domain

import "time"

// WinTypeWheelLottery is the only draw type the admin wheel produces
const WinTypeWheelLottery = "wheel_lottery"

// ContestDetails snapshots the draw a win came from
type ContestDetails struct {
	TotalParticipants int      `json:"total_participants"`
	TotalTickets      int64    `json:"total_tickets"`
	ParticipantsList  []string `json:"participants_list"`
}

// LotteryWin is an append-only record of a ticket consumption
type LotteryWin struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	UserEmail      string         `json:"user_email"`
	UserName       string         `json:"user_name"`
	Timestamp      time.Time      `json:"timestamp"`
	TimestampMs    int64          `json:"timestamp_ms"`
	PointsConsumed int64          `json:"points_consumed"`
	TicketsUsed    int64          `json:"tickets_used"`
	WinType        string         `json:"win_type"`
	Details        ContestDetails `json:"details"`
}

// Matches reports whether the win belongs to the user identified by key,
// compared against both id and email.
func (w *LotteryWin) Matches(key string) bool {
	return w.UserID == key || w.UserEmail == key
}

// WinCount aggregates the wins of one user
type WinCount struct {
	Count int    `json:"count"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
