// Command visitrackd serves a demo site behind the visitor tracking
// middleware. Storage is selected with TRACKING_STORE.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/visitrack/pkg/clientip"
	"github.com/dmitrymomot/visitrack/pkg/config"
	"github.com/dmitrymomot/visitrack/pkg/cookie"
	"github.com/dmitrymomot/visitrack/pkg/fingerprint"
	"github.com/dmitrymomot/visitrack/pkg/geoip"
	"github.com/dmitrymomot/visitrack/pkg/httpserver"
	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/requestid"
	"github.com/dmitrymomot/visitrack/pkg/session"
	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

type appConfig struct {
	Store           string   `env:"TRACKING_STORE" envDefault:"memory"`
	BannedAddresses []string `env:"TRACKING_SEED_BANS" envSeparator:","`
	ExcludedAgents  []string `env:"TRACKING_SEED_AGENTS" envSeparator:","`
	// Fingerprint binds sessions to the browser that created them.
	Fingerprint bool `env:"SESSION_FINGERPRINT" envDefault:"true"`
}

func main() {
	_ = config.LoadEnv()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg, logger.WithContextExtractors(requestid.LoggerExtractor()))
	logger.SetAsDefault(log)

	if err := run(context.Background(), log); err != nil {
		log.Error("visitrackd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		appCfg     appConfig
		serverCfg  httpserver.Config
		cookieCfg  cookie.Config
		sessionCfg session.Config
		trackCfg   tracking.Config
	)
	for _, load := range []func() error{
		func() error { return config.Load(&appCfg) },
		func() error { return config.Load(&serverCfg) },
		func() error { return config.Load(&cookieCfg) },
		func() error { return config.Load(&sessionCfg) },
		func() error { return config.Load(&trackCfg) },
	} {
		if err := load(); err != nil {
			return err
		}
	}

	backend, err := openBackend(ctx, appCfg.Store, log)
	if err != nil {
		return err
	}
	defer backend.close()

	if err := seedPolicy(ctx, backend.policy, appCfg); err != nil {
		return err
	}

	cookies, err := cookie.NewFromConfig(cookieCfg)
	if err != nil {
		return err
	}

	sessionOpts := []session.Option{session.WithCookieManager(cookies)}
	if appCfg.Fingerprint {
		sessionOpts = append(sessionOpts, session.WithFingerprint(fingerprint.Generate))
	}
	if backend.sessions != nil {
		sessionOpts = append(sessionOpts, session.WithStore(backend.sessions))
	}
	sessions := session.NewFromConfig(sessionCfg, sessionOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	trackOpts := []tracking.Option{
		tracking.WithConfig(trackCfg),
		tracking.WithLogger(log.With(logger.Component("tracking"))),
		tracking.WithCookieManager(cookies),
		tracking.WithSessions(tracking.NewManagedSessions(sessions)),
		tracking.WithMetrics(tracking.NewMetrics(reg)),
	}
	if trackCfg.UseGeoIP {
		var geoCfg geoip.Config
		if err := config.Load(&geoCfg); err != nil {
			return err
		}
		locator := geoip.NewFromConfig(geoCfg)
		defer locator.Close()
		trackOpts = append(trackOpts, tracking.WithLocator(locator))
	}

	tracker, err := tracking.New(backend.store, trackOpts...)
	if err != nil {
		return err
	}
	if err := tracker.Start(); err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware, clientip.Middleware)
	r.Get("/health/live", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, backend.ready))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(tracker.Middleware)
		r.Post(trackCfg.RefreshPath, tracker.RefreshHandler())
		r.Post(trackCfg.CleanupPath, tracker.CleanupHandler())
		r.Get("/*", pageHandler)
	})

	srv := httpserver.NewFromConfig(serverCfg,
		httpserver.WithLogger(log),
		httpserver.WithOnShutdown(tracker.Shutdown),
	)
	return srv.Run(ctx, r)
}

func pageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if v, ok := tracking.VisitorFromContext(r.Context()); ok {
		fmt.Fprintf(w, "visitor %s, %d page views\n", v.ID, v.PageViews)
		return
	}
	fmt.Fprintln(w, "not tracked")
}

func seedPolicy(ctx context.Context, ps tracking.PolicyStore, cfg appConfig) error {
	for _, addr := range cfg.BannedAddresses {
		if err := ps.BanAddress(ctx, addr); err != nil {
			return fmt.Errorf("seed ban %q: %w", addr, err)
		}
	}
	for _, pattern := range cfg.ExcludedAgents {
		if err := ps.ExcludeAgent(ctx, pattern); err != nil {
			return fmt.Errorf("seed agent %q: %w", pattern, err)
		}
	}
	return nil
}
