// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package cull removes accounts whose email address was never verified.
package cull

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"codeberg.org/synchro/synchroweb/internal/repository"
)

// Culler deletes accounts left unverified for longer than maxAge.
type Culler struct {
	store  repository.AccountStore
	maxAge time.Duration
	now    func() time.Time
	cron   *cron.Cron
}

// New creates a culler. A zero maxAge disables it.
func New(store repository.AccountStore, maxAge time.Duration) *Culler {
	return &Culler{store: store, maxAge: maxAge, now: time.Now}
}

// WithClock returns a copy of c using now as its clock.
func (c *Culler) WithClock(now func() time.Time) *Culler {
	cp := *c
	cp.now = now
	return &cp
}

// Enabled reports whether culling is configured.
func (c *Culler) Enabled() bool {
	return c.maxAge > 0
}

// RunOnce deletes every never-verified account created before now minus
// maxAge and returns how many were removed. Each delete is conditional on the
// etag seen while listing; accounts changed or deleted since are skipped.
func (c *Culler) RunOnce(ctx context.Context) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	cutoff := c.now().Add(-c.maxAge)
	accounts, err := c.store.ListUnverifiedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing unverified accounts: %w", err)
	}

	removed := 0
	for _, a := range accounts {
		err := c.store.DeleteAccount(ctx, a.ID, a.ETag)
		switch {
		case err == nil:
			removed++
			slog.Info("account_culled", "account_id", a.ID, "created_at", a.CreatedAt)
		case errors.Is(err, repository.ErrStale):
			slog.Info("cull_skipped_changed", "account_id", a.ID)
		case errors.Is(err, repository.ErrNotFound):
		default:
			return removed, fmt.Errorf("deleting account %s: %w", a.ID, err)
		}
	}

	slog.Info("cull_complete", "removed", removed, "cutoff", cutoff)
	return removed, nil
}

// Start schedules RunOnce on a cron spec such as "@daily" or "0 3 * * *".
func (c *Culler) Start(schedule string) error {
	if !c.Enabled() {
		slog.Info("cull_disabled")
		return nil
	}

	c.cron = cron.New()
	_, err := c.cron.AddFunc(schedule, func() {
		if _, err := c.RunOnce(context.Background()); err != nil {
			slog.Error("cull_failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cull schedule %q: %w", schedule, err)
	}

	c.cron.Start()
	slog.Info("cull_scheduled", "schedule", schedule, "max_age", c.maxAge)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (c *Culler) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}
