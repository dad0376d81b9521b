// Package pg bootstraps PostgreSQL access on top of pgx/v5: a retrying pool
// constructor, goose migrations from an embedded filesystem, a readiness
// probe and helpers that classify driver errors.
//
//	var cfg pg.Config // populated with config.Load
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations, "migrations", cfg, log); err != nil {
//		return err
//	}
//
// Use IsNotFoundError and IsDuplicateKeyError to map pgx errors onto domain
// errors.
package pg
