// Package store selects the persistence backend from configuration.
package store

import (
	"context"
	"fmt"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/config"
	"ayrene.com/backoffice/internal/messaging"
	"ayrene.com/backoffice/internal/store/memory"
	"ayrene.com/backoffice/internal/store/pg"
)

// Backend is everything the service persists.
type Backend interface {
	auth.Store
	Messages() messaging.Store
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*pg.Store)(nil)
)

// Open returns the PostgreSQL store when a DSN is configured and the
// in-memory store otherwise.
func Open(ctx context.Context, cfg config.PostgresConfig) (Backend, error) {
	if cfg.DSN == "" {
		return memory.New(), nil
	}
	s, err := pg.Open(cfg.DSN, pg.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return s, nil
}
