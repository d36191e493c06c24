package migrations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

// PostgresDB is satisfied by *pgxpool.Pool and the postgres store's Pool.
type PostgresDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyPostgres applies embedded migrations that are not yet recorded in
// schema_migrations and returns how many ran. Each file runs in its own
// transaction together with its bookkeeping row, so a failed file leaves no
// partial version behind.
func ApplyPostgres(ctx context.Context, db PostgresDB, log logrus.FieldLogger) (int, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	migrations, err := load(PostgresFS, "postgres")
	if err != nil {
		return 0, err
	}
	if _, err := db.Exec(ctx, schemaMigrationsDDL); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		ok, err := applyPostgres(ctx, db, m)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
			log.WithField("version", m.Version).Info("postgres migration applied")
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, db PostgresDB, m migration) (bool, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Concurrent starters serialize here; the loser sees the version as applied.
	if _, err := tx.Exec(ctx, "LOCK TABLE schema_migrations IN EXCLUSIVE MODE"); err != nil {
		return false, fmt.Errorf("lock schema_migrations: %w", err)
	}
	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", m.Version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.Version, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, m.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", m.Version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.Version, err)
	}
	return true, nil
}
