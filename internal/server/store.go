// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"fmt"

	"codeberg.org/synchro/synchroweb/internal/config"
	"codeberg.org/synchro/synchroweb/internal/database"
	"codeberg.org/synchro/synchroweb/internal/repository"
	"codeberg.org/synchro/synchroweb/internal/repository/aztable"
)

// openStore opens the configured account store. The returned func releases it.
func openStore(ctx context.Context, cfg *config.StoreConfig) (repository.AccountStore, func() error, error) {
	switch cfg.Backend {
	case "", "sqlite":
		db, err := database.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return repository.New(db), db.Close, nil
	case "aztable":
		store, err := aztable.New(ctx, aztable.Options{
			Account:  cfg.AzureAccount,
			Key:      cfg.AzureKey,
			Endpoint: cfg.AzureEndpoint,
			Table:    cfg.AzureTable,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open azure table: %w", err)
		}
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
