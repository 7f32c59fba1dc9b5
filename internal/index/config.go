// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package index

import (
	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Config holds the HNSW graph parameters.
//
// MaxConnections is the graph degree M; EfConstruction bounds the candidate
// list while building and must be >= MaxConnections; EfSearch bounds the
// candidate list at the base layer while querying.
type Config struct {
	Dimension      int
	MaxConnections int
	EfConstruction int
	EfSearch       int
	MaxElements    int
	MaxLayers      int
	UseParallel    bool

	// LinearScanThreshold is the element count below which Search falls
	// back to a full linear scan: graph traversal overhead exceeds the
	// benefit at small N. Zero uses the default.
	LinearScanThreshold int

	// RebuildThreshold is the number of pending removals past which the
	// next mutation triggers a full rebuild instead of incremental
	// patching. Zero uses the default.
	RebuildThreshold int
}

const (
	defaultLinearScanThreshold = 64
	defaultRebuildThreshold    = 256
)

// Validate rejects configurations the graph cannot be built with.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "dimension must be > 0, got %d", c.Dimension)
	}
	if c.MaxConnections <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "max_connections must be > 0, got %d", c.MaxConnections)
	}
	if c.EfConstruction <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "ef_construction must be > 0, got %d", c.EfConstruction)
	}
	if c.EfSearch <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "ef_search must be > 0, got %d", c.EfSearch)
	}
	if c.MaxElements <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "max_elements must be > 0, got %d", c.MaxElements)
	}
	if c.MaxLayers <= 0 {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid, "max_layers must be > 0, got %d", c.MaxLayers)
	}
	if c.EfConstruction < c.MaxConnections {
		return strataerr.Errorf(strataerr.CodeIndexConfigInvalid,
			"ef_construction (%d) must be >= max_connections (%d)", c.EfConstruction, c.MaxConnections)
	}
	return nil
}

func (c Config) linearScanThreshold() int {
	if c.LinearScanThreshold > 0 {
		return c.LinearScanThreshold
	}
	return defaultLinearScanThreshold
}

func (c Config) rebuildThreshold() int {
	if c.RebuildThreshold > 0 {
		return c.RebuildThreshold
	}
	return defaultRebuildThreshold
}

// DefaultConfig is a balanced starting point for a given dimension.
func DefaultConfig(dim int) Config {
	return Config{
		Dimension:      dim,
		MaxConnections: 16,
		EfConstruction: 200,
		EfSearch:       64,
		MaxElements:    100_000,
		MaxLayers:      16,
	}
}

// HighQuality trades latency for recall: large degree and candidate lists.
func HighQuality(dim int) Config {
	return Config{
		Dimension:      dim,
		MaxConnections: 48,
		EfConstruction: 400,
		EfSearch:       200,
		MaxElements:    1_000_000,
		MaxLayers:      16,
		UseParallel:    true,
	}
}

// UltraFast minimizes latency: small degree, minimal layering.
func UltraFast(dim int) Config {
	return Config{
		Dimension:      dim,
		MaxConnections: 8,
		EfConstruction: 64,
		EfSearch:       16,
		MaxElements:    100_000,
		MaxLayers:      4,
	}
}

// SmallDataset suits corpora of a few thousand elements: single-threaded,
// small caps, and a generous linear-scan window.
func SmallDataset(dim int) Config {
	return Config{
		Dimension:           dim,
		MaxConnections:      12,
		EfConstruction:      100,
		EfSearch:            48,
		MaxElements:         10_000,
		MaxLayers:           8,
		LinearScanThreshold: 512,
	}
}

// LargeDataset suits corpora in the millions: large caps, always parallel.
func LargeDataset(dim int) Config {
	return Config{
		Dimension:      dim,
		MaxConnections: 32,
		EfConstruction: 300,
		EfSearch:       128,
		MaxElements:    10_000_000,
		MaxLayers:      20,
		UseParallel:    true,
	}
}
