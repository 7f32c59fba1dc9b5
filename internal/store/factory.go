// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package store

import (
	"sync"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// defaultVectorDimensions matches all-MiniLM-L6-v2, the smallest embedding
// model the engine is typically deployed with.
const defaultVectorDimensions = 384

// Factory creates a tiered store rooted at dataPath with the given
// embedding dimensions.
type Factory func(dataPath string, vectorDims int) (TieredStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewTieredStore creates the tiered store for the configured backend.
// The dataPath directory is used to derive per-tier database file paths.
func NewTieredStore(cfg *StorageConfig, dataPath string) (TieredStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, strataerr.Errorf(strataerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}

	return factory(dataPath, dims)
}
