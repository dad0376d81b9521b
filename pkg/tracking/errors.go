package tracking

import "errors"

var (
	// ErrVisitorNotFound is returned by repositories when no visitor matches.
	ErrVisitorNotFound = errors.New("tracking.visitor_not_found")

	// ErrDuplicateVisitor is returned when a visitor with the same
	// (session key, address) pair or id already exists.
	ErrDuplicateVisitor = errors.New("tracking.duplicate_visitor")

	// ErrInvalidVisitor is returned for visitors missing an id or session key.
	ErrInvalidVisitor = errors.New("tracking.invalid_visitor")

	// ErrNoSession is returned by a SessionSource that cannot provide a session.
	ErrNoSession = errors.New("tracking.no_session")

	// ErrNoRepository is returned by New without a repository.
	ErrNoRepository = errors.New("tracking.no_repository")

	// ErrNoCookieManager is returned by New without a cookie manager.
	ErrNoCookieManager = errors.New("tracking.no_cookie_manager")

	// ErrInvalidSchedule is returned for sweep schedules cron cannot parse.
	ErrInvalidSchedule = errors.New("tracking.invalid_sweep_schedule")
)
