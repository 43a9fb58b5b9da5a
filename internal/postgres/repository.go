package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/climbing-points/internal/config"
	"github.com/climbing-points/internal/domain"
)

// Repository is the PostgreSQL member and lottery store. Every balance
// change is a single statement or a row-locked transaction.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	return connect(context.Background(), poolConfig, logger)
}

func connect(ctx context.Context, poolConfig *pgxpool.Config, logger *slog.Logger) (*Repository, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(320) NOT NULL DEFAULT '',
			points BIGINT NOT NULL DEFAULT 0,
			routes JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS lottery_wins (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			user_email VARCHAR(320) NOT NULL DEFAULT '',
			user_name VARCHAR(255) NOT NULL DEFAULT '',
			won_at TIMESTAMPTZ NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			points_consumed BIGINT NOT NULL,
			tickets_used BIGINT NOT NULL,
			win_type VARCHAR(32) NOT NULL,
			details JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_lottery_wins_user ON lottery_wins(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lottery_wins_email ON lottery_wins(user_email)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

const userColumns = `id, name, email, points, routes, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		routes []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Points, &routes, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(routes, &u.Routes); err != nil {
		return nil, fmt.Errorf("decoding routes of %s: %w", u.ID, err)
	}
	return &u, nil
}

// GetUser retrieves a member by id
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// EnsureUser creates an empty member record for identity if none exists
// and returns the stored record.
func (r *Repository) EnsureUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	query := `
		INSERT INTO users (id, name, email, points, routes, created_at, updated_at)
		VALUES ($1, $2, $3, 0, '[]'::jsonb, $4, $4)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, identity.ID, identity.DisplayName, identity.Email, r.now()); err != nil {
		return nil, fmt.Errorf("ensuring user: %w", err)
	}
	return r.GetUser(ctx, identity.ID)
}

// AddRoute appends record to the member's history and credits its points
// in one statement, creating the member on first submission.
func (r *Repository) AddRoute(ctx context.Context, identity domain.Identity, record domain.RouteRecord) error {
	routeJSON, err := json.Marshal([]domain.RouteRecord{record})
	if err != nil {
		return fmt.Errorf("marshaling route: %w", err)
	}

	query := `
		INSERT INTO users (id, name, email, points, routes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			points = users.points + EXCLUDED.points,
			routes = users.routes || EXCLUDED.routes,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query,
		identity.ID,
		identity.DisplayName,
		identity.Email,
		record.TotalPoints,
		routeJSON,
		r.now(),
	)
	if err != nil {
		return fmt.Errorf("adding route: %w", err)
	}
	return nil
}

// RemoveRoute drops the route with record's id from the member's history
// and subtracts the points stored on it. The row is locked for the
// duration so a concurrent delete of the same route finds it gone.
func (r *Repository) RemoveRoute(ctx context.Context, userID string, record domain.RouteRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var routesJSON []byte
	err = tx.QueryRow(ctx, `SELECT routes FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&routesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRouteNotFound
		}
		return fmt.Errorf("locking user: %w", err)
	}

	var routes []domain.RouteRecord
	if err := json.Unmarshal(routesJSON, &routes); err != nil {
		return fmt.Errorf("decoding routes: %w", err)
	}

	kept := make([]domain.RouteRecord, 0, len(routes))
	var removed *domain.RouteRecord
	for i := range routes {
		if removed == nil && routes[i].ID == record.ID {
			removed = &routes[i]
			continue
		}
		kept = append(kept, routes[i])
	}
	if removed == nil {
		return domain.ErrRouteNotFound
	}

	keptJSON, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("marshaling routes: %w", err)
	}

	query := `
		UPDATE users
		SET points = points - $2, routes = $3::jsonb, updated_at = $4
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, userID, removed.TotalPoints, keptJSON, r.now()); err != nil {
		return fmt.Errorf("removing route: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing route removal: %w", err)
	}
	return nil
}

// DebitPoints subtracts points only while the balance covers them
func (r *Repository) DebitPoints(ctx context.Context, userID string, points int64) error {
	query := `
		UPDATE users
		SET points = points - $2, updated_at = $3
		WHERE id = $1 AND points >= $2
	`
	result, err := r.pool.Exec(ctx, query, userID, points, r.now())
	if err != nil {
		return fmt.Errorf("debiting points: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking user existence: %w", err)
	}
	if !exists {
		return domain.ErrUserNotFound
	}
	return domain.ErrInsufficientBalance
}

// ListUsers returns every member in creation order
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// AddLotteryWin records a win
func (r *Repository) AddLotteryWin(ctx context.Context, win domain.LotteryWin) error {
	details, err := json.Marshal(win.Details)
	if err != nil {
		return fmt.Errorf("marshaling contest details: %w", err)
	}

	query := `
		INSERT INTO lottery_wins (
			id, user_id, user_email, user_name, won_at, timestamp_ms,
			points_consumed, tickets_used, win_type, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
	`
	_, err = r.pool.Exec(ctx, query,
		win.ID,
		win.UserID,
		win.UserEmail,
		win.UserName,
		win.Timestamp,
		win.TimestampMs,
		win.PointsConsumed,
		win.TicketsUsed,
		win.WinType,
		details,
	)
	if err != nil {
		return fmt.Errorf("recording lottery win: %w", err)
	}
	return nil
}

// ListLotteryWins returns every recorded win, oldest first
func (r *Repository) ListLotteryWins(ctx context.Context) ([]domain.LotteryWin, error) {
	query := `
		SELECT id, user_id, user_email, user_name, won_at, timestamp_ms,
			points_consumed, tickets_used, win_type, details
		FROM lottery_wins
		ORDER BY timestamp_ms, id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing lottery wins: %w", err)
	}
	defer rows.Close()

	var wins []domain.LotteryWin
	for rows.Next() {
		var (
			w       domain.LotteryWin
			details []byte
		)
		err := rows.Scan(
			&w.ID,
			&w.UserID,
			&w.UserEmail,
			&w.UserName,
			&w.Timestamp,
			&w.TimestampMs,
			&w.PointsConsumed,
			&w.TicketsUsed,
			&w.WinType,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning lottery win: %w", err)
		}
		if err := json.Unmarshal(details, &w.Details); err != nil {
			return nil, fmt.Errorf("decoding contest details of %s: %w", w.ID, err)
		}
		wins = append(wins, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing lottery wins: %w", err)
	}
	return wins, nil
}
