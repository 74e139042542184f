// Package factory opens a storage backend based on configuration.
package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/storage/dolt"
	"github.com/tracklog/tracklog/internal/storage/sqlite"
)

// Backend names accepted in the `backend` config key.
const (
	BackendSQLite = "sqlite"
	BackendDolt   = "dolt"
)

// Options configures how the storage backend is opened.
type Options struct {
	// Path is the SQLite database file.
	Path string

	// Dolt server connection.
	Dolt dolt.Config
}

// BackendFactory is a function that creates a storage backend
type BackendFactory func(ctx context.Context, opts Options) (storage.Storage, error)

var (
	registryMu      sync.RWMutex
	backendRegistry = map[string]BackendFactory{
		BackendSQLite: func(ctx context.Context, opts Options) (storage.Storage, error) {
			s, err := sqlite.New(ctx, opts.Path)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		BackendDolt: func(ctx context.Context, opts Options) (storage.Storage, error) {
			s, err := dolt.New(ctx, opts.Dolt)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}
)

// RegisterBackend registers a storage backend factory, replacing any
// existing one with the same name.
func RegisterBackend(name string, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backendRegistry[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New opens the named backend. An empty name selects sqlite.
func New(ctx context.Context, backend string, opts Options) (storage.Storage, error) {
	if backend == "" {
		backend = BackendSQLite
	}
	registryMu.RLock()
	factory, ok := backendRegistry[backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend: %s (supported: %s)", backend, strings.Join(Backends(), ", "))
	}
	return factory(ctx, opts)
}
