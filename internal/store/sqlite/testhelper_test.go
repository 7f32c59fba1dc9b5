// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package sqlite_test

import (
	"os"
	"testing"

	"github.com/strata-dev/strata/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDims keeps test vectors small and readable.
const testDims = 3

// testStore creates a tiered store in a temp directory with cleanup.
func testStore(t *testing.T) *sqlite.TieredStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "strata-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	ts, err := sqlite.New(dir, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Close() })
	return ts
}
