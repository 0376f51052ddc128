// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DirStore serves artifacts from a local directory.
type DirStore struct {
	fsys fs.FS
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("blob directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("blob directory: %s is not a directory", dir)
	}
	return &DirStore{fsys: os.DirFS(dir)}, nil
}

// Open opens name inside the root. Names with separators or dot segments are rejected.
func (s *DirStore) Open(_ context.Context, name string) (*Object, error) {
	if strings.ContainsAny(name, `/\`) || !fs.ValidPath(name) || name == "." {
		return nil, ErrInvalidName
	}

	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat blob: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Object{
		Body:          f,
		ContentType:   contentType,
		ContentLength: info.Size(),
		ETag:          fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size()),
		LastModified:  info.ModTime().UTC(),
	}, nil
}
