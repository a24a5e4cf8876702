// Package filestore keeps uploaded receipts and carrier labels on the local disk.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidName = errors.New("invalid file name")

type Store interface {
	// Save writes data under dir/name and returns the relative path.
	Save(ctx context.Context, dir, name string, data []byte) (string, error)
	Open(ctx context.Context, path string) ([]byte, error)
	// Remove deletes a saved file. A missing file is not an error.
	Remove(ctx context.Context, path string) error
}

type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{root: root}, nil
}

func clean(p string) (string, error) {
	c := filepath.Clean(p)
	if c == "." || filepath.IsAbs(c) || strings.HasPrefix(c, "..") {
		return "", ErrInvalidName
	}
	return c, nil
}

func (l *Local) Save(ctx context.Context, dir, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := clean(filepath.Join(dir, filepath.Base(name)))
	if err != nil {
		return "", err
	}
	full := filepath.Join(l.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return filepath.ToSlash(rel), nil
}

func (l *Local) Open(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := clean(filepath.FromSlash(path))
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(l.root, rel))
}

func (l *Local) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := clean(filepath.FromSlash(path))
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.root, rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}
