// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package sqlite

import (
	"github.com/strata-dev/strata/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(dataPath string, vectorDims int) (store.TieredStore, error) {
		return New(dataPath, vectorDims)
	})
}
