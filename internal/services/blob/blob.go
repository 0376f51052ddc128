// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package blob serves distribution artifacts from S3 or a local directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"codeberg.org/synchro/synchroweb/internal/config"
)

var (
	// ErrNotFound is returned when no object has the requested name.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidName is returned for names that could escape the store.
	ErrInvalidName = errors.New("invalid blob name")
)

// Object is an open artifact. The caller closes Body.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
	ETag          string
	LastModified  time.Time
}

// Store opens artifacts by name.
type Store interface {
	Open(ctx context.Context, name string) (*Object, error)
}

// New returns the store selected by cfg.Backend.
func New(ctx context.Context, cfg *config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "", "dir":
		return NewDirStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}
