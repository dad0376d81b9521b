// Package sqlstore is a SQLite tracking.Repository built on sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

//go:embed schema.sql
var schema string

// Config holds SQLite configuration.
type Config struct {
	Path string `env:"SQLITE_PATH" envDefault:"visitrack.db"`
}

// Store implements tracking.Repository and tracking.PolicyStore.
type Store struct {
	db *sqlx.DB
}

var (
	_ tracking.Repository  = (*Store)(nil)
	_ tracking.PolicyStore = (*Store)(nil)
)

// Open opens the database at dsn and creates missing tables.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; an in-memory database lives in one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call Migrate before use.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tracking tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const visitorColumns = `id, session_key, address, user_id, user_agent, referrer, current_url,
	page_views, session_start, last_activity, tracking_tag, country, city`

func (s *Store) FindByID(ctx context.Context, id string) (*tracking.Visitor, error) {
	var v tracking.Visitor
	err := s.db.GetContext(ctx, &v, `SELECT `+visitorColumns+` FROM visitors WHERE id = ?`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) FindBySession(ctx context.Context, sessionKey, address string) (*tracking.Visitor, error) {
	var v tracking.Visitor
	err := s.db.GetContext(ctx, &v,
		`SELECT `+visitorColumns+` FROM visitors WHERE session_key = ? AND address = ?`,
		sessionKey, address)
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) Create(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO visitors (`+visitorColumns+`) VALUES (
		:id, :session_key, :address, :user_id, :user_agent, :referrer, :current_url,
		:page_views, :session_start, :last_activity, :tracking_tag, :country, :city)`, utc(v))
	return translate(err)
}

func (s *Store) Save(ctx context.Context, v *tracking.Visitor) error {
	if v == nil || v.ID == "" || v.SessionKey == "" {
		return tracking.ErrInvalidVisitor
	}
	res, err := s.db.NamedExecContext(ctx, `UPDATE visitors SET
		session_key = :session_key, address = :address, user_id = :user_id,
		user_agent = :user_agent, referrer = :referrer, current_url = :current_url,
		page_views = :page_views, session_start = :session_start,
		last_activity = :last_activity, tracking_tag = :tracking_tag,
		country = :country, city = :city
		WHERE id = :id`, utc(v))
	if err != nil {
		return translate(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return tracking.ErrVisitorNotFound
	}
	return nil
}

func (s *Store) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE last_activity < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) ListBannedAddresses(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `SELECT address FROM banned_addresses ORDER BY address`)
	return out, err
}

func (s *Store) ListExcludedAgents(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `SELECT pattern FROM excluded_agents ORDER BY rowid`)
	return out, err
}

func (s *Store) BanAddress(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO banned_addresses (address) VALUES (?)`, address)
	return err
}

func (s *Store) UnbanAddress(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM banned_addresses WHERE address = ?`, address)
	return err
}

func (s *Store) ExcludeAgent(ctx context.Context, pattern string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO excluded_agents (pattern) VALUES (?)`, pattern)
	return err
}

func (s *Store) IncludeAgent(ctx context.Context, pattern string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM excluded_agents WHERE pattern = ?`, pattern)
	return err
}

// utc returns a copy of v with UTC times; timestamps are stored as text and
// compared lexically.
func utc(v *tracking.Visitor) *tracking.Visitor {
	c := *v
	c.SessionStart = c.SessionStart.UTC()
	c.LastActivity = c.LastActivity.UTC()
	return &c
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.ErrVisitorNotFound
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return tracking.ErrDuplicateVisitor
	}
	return err
}
