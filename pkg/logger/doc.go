// Package logger builds *slog.Logger instances with functional options,
// consistent attribute helpers and transparent injection of values stored in
// context.Context.
//
// New selects slog.NewTextHandler or slog.NewJSONHandler based on the
// configured Format and wraps it with LogHandlerDecorator, which runs every
// registered ContextExtractor before delegating. Helper constructors in
// attr.go (Error, VisitorID, IPAddress, Stack, ...) keep attribute keys
// consistent across the tracker packages.
//
// # Usage
//
//	log := logger.NewFromConfig(cfg,
//	    logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
//	        id := requestid.FromContext(ctx)
//	        return logger.RequestID(id), id != ""
//	    }),
//	)
//	log.InfoContext(ctx, "visitor tracked", logger.VisitorID(v.ID))
//
// Error and Errors return an empty attribute for nil errors, so
//
//	log.Info("sweep finished", logger.Error(err))
//
// needs no extra nil check.
package logger
