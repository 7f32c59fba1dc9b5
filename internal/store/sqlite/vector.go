// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package sqlite

import (
	"encoding/binary"
	"math"
)

// decodeVector decodes the little-endian float32 blob layout produced by
// sqlite_vec.SerializeFloat32. A nil or truncated blob decodes to nil.
func decodeVector(blob []byte) []float32 {
	if len(blob) < 4 {
		return nil
	}
	n := len(blob) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
