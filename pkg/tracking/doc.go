// Package tracking records visitor activity at request time.
//
// Every request passing through Tracker.Middleware is checked against the
// exclusion policy first. Requests from a banned address are answered with
// 404 Not Found. Requests under an ignored path prefix, or whose user agent
// contains an excluded pattern, pass through untracked. Every other request
// is resolved to a Visitor (by the visitor cookie, then by session key and
// address), its activity window is updated and persisted, and the visitor
// cookie is refreshed before the downstream handler runs.
//
// Tracking never breaks a request: store failures are logged and the
// request continues without a visitor in its context.
//
// # Storage
//
// Tracker works against the Repository interface. MemoryStore is provided
// here; pgstore, sqlstore and redisstore live in subpackages.
//
// # Usage
//
//	cookies, _ := cookie.New([]string{secret})
//	sessions := session.New(session.WithCookieManager(cookies))
//
//	tracker, err := tracking.New(store,
//		tracking.WithConfig(cfg),
//		tracking.WithCookieManager(cookies),
//		tracking.WithSessions(tracking.NewManagedSessions(sessions)),
//		tracking.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	handler := tracker.Middleware(mux)
//
// Handlers read the tracked visitor with VisitorFromContext.
//
// # Cleanup
//
// With Config.CleanupTimeout set, visitors inactive for longer are deleted
// by Sweeper: on a random fraction of requests, on an optional cron
// schedule (Tracker.Start), or through CleanupHandler.
package tracking
