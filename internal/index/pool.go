// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package index

import "sync"

// maxPooledFloats caps the retained size of pooled scratch buffers.
// Oversized buffers are dropped instead of returned so a single large
// query cannot pin memory for the life of the pool.
const maxPooledFloats = 4096

// bufPool recycles float32 scratch buffers used for normalized query copies.
type bufPool struct {
	pool sync.Pool
}

func (p *bufPool) get(n int) []float32 {
	if v := p.pool.Get(); v != nil {
		buf := v.([]float32)
		if cap(buf) >= n {
			return buf[:n]
		}
	}
	return make([]float32, n)
}

func (p *bufPool) put(buf []float32) {
	if cap(buf) > maxPooledFloats {
		return
	}
	p.pool.Put(buf[:0])
}
