package telegoogle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shaxb/tele-google/ai"
	"github.com/shaxb/tele-google/config"
	"github.com/shaxb/tele-google/notify"
	"github.com/shaxb/tele-google/registry"
	"github.com/shaxb/tele-google/storage/postgres"
)

// OpenService builds a Service from process configuration. opts are
// applied after the configured ones.
func OpenService(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	base := []ServiceOption{
		WithLogger(logger),
		WithAIConfig(ai.NewConfig(cfg.AI.Options()...)),
		WithDealOptions(cfg.Deal.Options()...),
		WithNotifier(notify.New(cfg.Notify.Transport(),
			append(cfg.Notify.Options(), notify.WithLogger(logger))...)),
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "", "badger":
	case "postgres":
		store, err := postgres.NewStore(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		base = append(base, WithStore(store))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return NewService(cfg.Store.Path, append(base, opts...)...)
}

// OpenRegistry opens the configured source registry. The returned close
// function releases it.
func OpenRegistry(ctx context.Context, cfg config.RegistryConfig, logger *slog.Logger) (registry.Editor, func() error, error) {
	opts := []registry.Option{registry.WithLogger(logger)}

	switch strings.ToLower(cfg.Driver) {
	case "", "file":
		return registry.NewFileRegistry(cfg.Path, opts...), func() error { return nil }, nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "registry.db"
		}
		r, err := registry.OpenSQLiteRegistry(ctx, dsn, opts...)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Driver)
	}
}
