// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package index

import (
	"math"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// distance is cosine distance over unit vectors: 1 - dot product.
// Both inputs must already be normalized.
func distance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

// normalizeInto writes the unit-normalized copy of src into dst, rejecting
// vectors of the wrong dimension. A zero vector is copied unchanged.
func normalizeInto(dst, src []float32, dim int) error {
	if len(src) != dim {
		return strataerr.Errorf(strataerr.CodeIndexDimensionMismatch,
			"vector has %d dims, index configured for %d", len(src), dim)
	}

	var sum float64
	for _, v := range src {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		copy(dst, src)
		return nil
	}

	inv := 1 / math.Sqrt(sum)
	for i, v := range src {
		dst[i] = float32(float64(v) * inv)
	}
	return nil
}
