package domain

import "time"

// DefaultRouteName is stored when a submission has no route name.
const DefaultRouteName = "Unnamed route"

// Identity is the authenticated caller as seen by the engines.
type Identity struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Provider    Provider `json:"provider"`
}

// IsOffline reports whether the identity belongs to the simulated provider
// whose actions must not mutate shared state.
func (i *Identity) IsOffline() bool {
	return i != nil && i.Provider.Offline()
}

// User is the persisted member document
type User struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Points    int64         `json:"points"`
	Routes    []RouteRecord `json:"routes"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FindRoute returns the route with the given id from the user's history
func (u *User) FindRoute(routeID string) (RouteRecord, bool) {
	for _, r := range u.Routes {
		if r.ID == routeID {
			return r, true
		}
	}
	return RouteRecord{}, false
}

// RouteRecord is one climbed route. Records are never edited once stored.
type RouteRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Grade        string    `json:"grade"`
	RouteName    string    `json:"route_name"`
	GradePoints  int64     `json:"grade_points"`
	BonusPoints  int64     `json:"bonus_points"`
	TotalPoints  int64     `json:"total_points"`
	BonusDetails []string  `json:"bonus_details"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	UserID       string    `json:"user_id"`
	UserEmail    string    `json:"user_email"`
}

// UserView is the caller's snapshot of their own standing
type UserView struct {
	UserID      string        `json:"user_id"`
	Points      int64         `json:"points"`
	Tickets     int64         `json:"tickets"`
	Routes      []RouteRecord `json:"routes"`
	LotteryWins int           `json:"lottery_wins"`
}

// NewUserView builds a view of u with tickets derived at ratio
func NewUserView(u *User, ratio int64, lotteryWins int) UserView {
	routes := u.Routes
	if routes == nil {
		routes = []RouteRecord{}
	}
	return UserView{
		UserID:      u.ID,
		Points:      u.Points,
		Tickets:     Tickets(u.Points, ratio),
		Routes:      routes,
		LotteryWins: lotteryWins,
	}
}
