package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/visitrack/pkg/config"
	"github.com/dmitrymomot/visitrack/pkg/pg"
	redisconn "github.com/dmitrymomot/visitrack/pkg/redis"
	"github.com/dmitrymomot/visitrack/pkg/session"
	"github.com/dmitrymomot/visitrack/pkg/tracking"
	"github.com/dmitrymomot/visitrack/pkg/tracking/pgstore"
	"github.com/dmitrymomot/visitrack/pkg/tracking/redisstore"
	"github.com/dmitrymomot/visitrack/pkg/tracking/sqlstore"
)

// visitorStore is what every backend provides.
type visitorStore interface {
	tracking.Repository
	tracking.PolicyStore
}

type backend struct {
	store    visitorStore
	policy   tracking.PolicyStore
	sessions session.Store
	ready    func(context.Context) error
	close    func()
}

func openBackend(ctx context.Context, kind string, log *slog.Logger) (*backend, error) {
	log = log.With(slog.String("store", kind))

	switch kind {
	case "", "memory":
		s := tracking.NewMemoryStore()
		return &backend{
			store:  s,
			policy: s,
			ready:  func(context.Context) error { return nil },
			close:  func() {},
		}, nil

	case "postgres":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, err
		}
		s := pgstore.New(pool)
		return &backend{store: s, policy: s, ready: pg.Healthcheck(pool), close: pool.Close}, nil

	case "sqlite":
		var cfg sqlstore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		s, err := sqlstore.Open(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:  s,
			policy: s,
			ready:  s.Ping,
			close:  func() { _ = s.Close() },
		}, nil

	case "redis":
		var cfg redisconn.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redisconn.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := redisstore.New(client, cfg.KeyPrefix)
		return &backend{
			store:    s,
			policy:   s,
			sessions: session.NewRedisStore(client, cfg.KeyPrefix),
			ready:    redisconn.Healthcheck(client),
			close:    func() { _ = client.Close() },
		}, nil
	}

	return nil, fmt.Errorf("unknown TRACKING_STORE %q", kind)
}
