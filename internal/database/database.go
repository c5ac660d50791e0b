package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	freescannerlive "github.com/snarg/freescanner-live"
)

// One connection serves the call log writer, the rest serve /api/v1/calls.
const (
	maxConns        = 4
	maxConnIdleTime = 5 * time.Minute
	applicationName = "freescanner-live"
)

// DB is the played-call log.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open connects to the played-call log and brings its schema up to date.
// A *MigrationError means the database user cannot alter played_calls.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url %s: %w", maskDSN(databaseURL), err)
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = maxConnIdleTime
	cfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect %s: %w", maskDSN(databaseURL), err)
	}

	db := &DB{Pool: pool, log: log}
	if err := db.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create played_calls: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Msg("call log database ready")
	return db, nil
}

// ensureSchema creates played_calls on a fresh database.
func (db *DB) ensureSchema(ctx context.Context) error {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = current_schema() AND tablename = 'played_calls')`,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := db.Pool.Exec(ctx, string(freescannerlive.SchemaSQL)); err != nil {
		return err
	}
	db.log.Info().Msg("played_calls table created")
	return nil
}

// HealthCheck pings the database for /api/v1/health.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}

// maskDSN hides the password of a database URL for logs and errors.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
