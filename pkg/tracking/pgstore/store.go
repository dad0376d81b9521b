// Package pgstore is a PostgreSQL tracking.Repository built on pgx/v5.
package pgstore

import (
	"context"
	"embed"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/visitrack/pkg/pg"
	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements tracking.Repository and tracking.PolicyStore.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ tracking.Repository  = (*Store)(nil)
	_ tracking.PolicyStore = (*Store)(nil)
)

// New returns a Store using pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates or upgrades the tracking tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

const visitorColumns = `id, session_key, address, user_id, user_agent, referrer, current_url,
	page_views, session_start, last_activity, tracking_tag, country, city`

func (s *Store) FindByID(ctx context.Context, id string) (*tracking.Visitor, error) {
	rows, _ := s.pool.Query(ctx, `SELECT `+visitorColumns+` FROM visitors WHERE id = $1`, id)
	return collectVisitor(rows)
}

func (s *Store) FindBySession(ctx context.Context, sessionKey, address string) (*tracking.Visitor, error) {
	rows, _ := s.pool.Query(ctx,
		`SELECT `+visitorColumns+` FROM visitors WHERE session_key = $1 AND address = $2`,
		sessionKey, address)
	return collectVisitor(rows)
}

func (s *Store) Create(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO visitors (`+visitorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.ID, v.SessionKey, v.Address, v.UserID, v.UserAgent, v.Referrer, v.CurrentURL,
		v.PageViews, v.SessionStart, v.LastActivity, v.TrackingTag, v.Country, v.City)
	return translate(err)
}

func (s *Store) Save(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}
	tag, err := s.pool.Exec(ctx, `UPDATE visitors SET
		session_key = $2, address = $3, user_id = $4, user_agent = $5, referrer = $6,
		current_url = $7, page_views = $8, session_start = $9, last_activity = $10,
		tracking_tag = $11, country = $12, city = $13
		WHERE id = $1`,
		v.ID, v.SessionKey, v.Address, v.UserID, v.UserAgent, v.Referrer, v.CurrentURL,
		v.PageViews, v.SessionStart, v.LastActivity, v.TrackingTag, v.Country, v.City)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrVisitorNotFound
	}
	return nil
}

func (s *Store) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM visitors WHERE last_activity < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListBannedAddresses(ctx context.Context) ([]string, error) {
	rows, _ := s.pool.Query(ctx, `SELECT address FROM banned_addresses ORDER BY address`)
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ListExcludedAgents(ctx context.Context) ([]string, error) {
	rows, _ := s.pool.Query(ctx, `SELECT pattern FROM excluded_agents ORDER BY created_at, pattern`)
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) BanAddress(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO banned_addresses (address) VALUES ($1) ON CONFLICT DO NOTHING`, address)
	return err
}

func (s *Store) UnbanAddress(ctx context.Context, address string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM banned_addresses WHERE address = $1`, address)
	return err
}

func (s *Store) ExcludeAgent(ctx context.Context, pattern string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO excluded_agents (pattern) VALUES ($1) ON CONFLICT DO NOTHING`, pattern)
	return err
}

func (s *Store) IncludeAgent(ctx context.Context, pattern string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM excluded_agents WHERE pattern = $1`, pattern)
	return err
}

func collectVisitor(rows pgx.Rows) (*tracking.Visitor, error) {
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByNameLax[tracking.Visitor])
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return tracking.ErrVisitorNotFound
	case pg.IsDuplicateKeyError(err):
		return tracking.ErrDuplicateVisitor
	default:
		return err
	}
}
