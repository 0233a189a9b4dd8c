// Package memory is an in-process ObjectStore used by tests and the local
// edge emulator.
package memory

import (
	"context"
	"crypto/md5"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/mahirjain10/edge-image-resize/internal/store"
	"github.com/mahirjain10/edge-image-resize/internal/transformation"
	"github.com/mahirjain10/edge-image-resize/internal/utils"
)

type Store struct {
	mu      sync.RWMutex
	objects map[string]store.Object
	puts    int
}

func New() *Store {
	return &Store{objects: make(map[string]store.Object)}
}

func (s *Store) Get(ctx context.Context, key string) (*store.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, opts store.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	obj := store.Object{
		Key:          key,
		Data:         append([]byte(nil), data...),
		ContentType:  contentType,
		CacheControl: opts.CacheControl,
		ETag:         fmt.Sprintf("%x", md5.Sum(data)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = obj
	s.puts++
	return nil
}

// Puts returns how many writes the store has accepted.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Seed loads every regular file under dir, keyed by its slash-separated
// path relative to dir.
func (s *Store) Seed(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := utils.ReadImageBuffer(p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if err := s.Put(ctx, key, data, store.PutOptions{ContentType: transformation.SniffContentType(data)}); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to seed store from %s: %w", dir, err)
	}
	return count, nil
}
