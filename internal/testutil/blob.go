// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"io"
	"strings"
	"time"

	"codeberg.org/synchro/synchroweb/internal/services/blob"
)

// Blobs is an in-memory blob.Store keyed by name.
type Blobs struct {
	Files map[string]string
	Err   error
}

// Open returns the named file or blob.ErrNotFound.
func (b *Blobs) Open(_ context.Context, name string) (*blob.Object, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	content, ok := b.Files[name]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return &blob.Object{
		Body:          io.NopCloser(strings.NewReader(content)),
		ContentType:   "application/octet-stream",
		ContentLength: int64(len(content)),
		ETag:          `"` + name + `"`,
		LastModified:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}
