package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/MunnymanCommunications/gemdesign/internal/config"
)

// NewPool creates a pgx connection pool for the entitlement schema and
// verifies connectivity before returning.
func NewPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	schema := cfg.Database.Schema
	if _, err := pool.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("set search_path: %w", err)
	}

	log.Info().
		Str("component", "db").
		Str("host", cfg.Database.Host).
		Str("database", cfg.Database.DBName).
		Str("schema", schema).
		Msg("connected to PostgreSQL")

	return pool, nil
}
