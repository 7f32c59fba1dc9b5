// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Config is the top-level Strata configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Index     IndexConfig     `mapstructure:"index"`
	Promotion PromotionConfig `mapstructure:"promotion"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Query     QueryConfig     `mapstructure:"query"`
}

// StorageConfig selects the tiered-store backend and its location.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	// DataDir holds the per-tier databases. Empty resolves to the
	// platform default under the user's data directory.
	DataDir          string `mapstructure:"data_dir"`
	VectorDimensions int    `mapstructure:"vector_dimensions"`
}

// CacheConfig controls the persistent embedding cache.
type CacheConfig struct {
	// Path of the cache database. Empty places it inside the data dir.
	Path         string `mapstructure:"path"`
	MaxCostBytes int64  `mapstructure:"max_cost_bytes"`
}

// IndexConfig tunes the per-tier vector indexes. Zero-valued graph
// parameters inherit from the preset.
type IndexConfig struct {
	Preset              string `mapstructure:"preset"`
	MaxConnections      int    `mapstructure:"max_connections"`
	EfConstruction      int    `mapstructure:"ef_construction"`
	EfSearch            int    `mapstructure:"ef_search"`
	MaxElements         int    `mapstructure:"max_elements"`
	MaxLayers           int    `mapstructure:"max_layers"`
	UseParallel         bool   `mapstructure:"use_parallel"`
	LinearScanThreshold int    `mapstructure:"linear_scan_threshold"`
	RebuildThreshold    int    `mapstructure:"rebuild_threshold"`
}

// PromotionConfig controls the background promotion cycle.
type PromotionConfig struct {
	// Engine selects the gate: "rules" or "ml".
	Engine           string   `mapstructure:"engine"`
	IntervalMinutes  int      `mapstructure:"interval_minutes"`
	InteractTTLHours float64  `mapstructure:"interact_ttl_hours"`
	InsightsTTLDays  float64  `mapstructure:"insights_ttl_days"`
	PromoteThreshold float32  `mapstructure:"promote_threshold"`
	DecayFactor      float32  `mapstructure:"decay_factor"`
	ML               MLConfig `mapstructure:"ml"`
}

// MLConfig tunes the learned promotion gate.
type MLConfig struct {
	MinAccessThreshold    int     `mapstructure:"min_access_threshold"`
	TemporalWeight        float64 `mapstructure:"temporal_weight"`
	SemanticWeight        float64 `mapstructure:"semantic_weight"`
	UsageWeight           float64 `mapstructure:"usage_weight"`
	PromotionThreshold    float64 `mapstructure:"promotion_threshold"`
	BatchSize             int     `mapstructure:"batch_size"`
	TrainingIntervalHours float64 `mapstructure:"training_interval_hours"`
}

// ProviderConfig names the embedding provider.
type ProviderConfig struct {
	// EmbeddingModel identifies the embedding space. "strata-hash-v1"
	// selects the built-in deterministic embedder.
	EmbeddingModel string `mapstructure:"embedding_model"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	// Fallback degrades to the deterministic embedder when the provider
	// fails instead of failing the request.
	Fallback bool `mapstructure:"fallback"`
}

// QueryConfig sets search defaults.
type QueryConfig struct {
	TopK   int  `mapstructure:"top_k"`
	Hybrid bool `mapstructure:"hybrid"`
	Rerank bool `mapstructure:"rerank"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix STRATA_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults. Every key gets one (zero values included) so environment
	// overrides are visible to Unmarshal.
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.data_dir", "")
	v.SetDefault("storage.vector_dimensions", 384)
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.max_cost_bytes", 64<<20)
	v.SetDefault("index.preset", "default")
	v.SetDefault("index.max_connections", 0)
	v.SetDefault("index.ef_construction", 0)
	v.SetDefault("index.ef_search", 0)
	v.SetDefault("index.max_elements", 0)
	v.SetDefault("index.max_layers", 0)
	v.SetDefault("index.use_parallel", false)
	v.SetDefault("index.linear_scan_threshold", 64)
	v.SetDefault("index.rebuild_threshold", 256)
	v.SetDefault("promotion.engine", "rules")
	v.SetDefault("promotion.interval_minutes", 60)
	v.SetDefault("promotion.interact_ttl_hours", 24)
	v.SetDefault("promotion.insights_ttl_days", 7)
	v.SetDefault("promotion.promote_threshold", 0.5)
	v.SetDefault("promotion.decay_factor", 0.9)
	v.SetDefault("promotion.ml.min_access_threshold", 2)
	v.SetDefault("promotion.ml.temporal_weight", 0.3)
	v.SetDefault("promotion.ml.semantic_weight", 0.4)
	v.SetDefault("promotion.ml.usage_weight", 0.3)
	v.SetDefault("promotion.ml.promotion_threshold", 0.7)
	v.SetDefault("promotion.ml.batch_size", 100)
	v.SetDefault("promotion.ml.training_interval_hours", 24)
	v.SetDefault("provider.embedding_model", "strata-hash-v1")
	v.SetDefault("provider.endpoint", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.fallback", true)
	v.SetDefault("query.top_k", 10)
	v.SetDefault("query.hybrid", false)
	v.SetDefault("query.rerank", false)

	// Environment
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, strataerr.Errorf(strataerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found, collecting every issue rather than stopping
// at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateIndex()...)
	errs = append(errs, c.validatePromotion()...)
	errs = append(errs, c.validateQuery()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite], got %q",
			c.Storage.Backend,
		))
	}

	if c.Storage.VectorDimensions <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: storage.vector_dimensions must be greater than 0, got %d",
			c.Storage.VectorDimensions,
		))
	}

	if c.Cache.MaxCostBytes < 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: cache.max_cost_bytes must not be negative, got %d",
			c.Cache.MaxCostBytes,
		))
	}

	return errs
}

func (c *Config) validateIndex() []error {
	var errs []error

	validPresets := map[string]bool{
		"default": true, "high_quality": true, "ultra_fast": true,
		"small_dataset": true, "large_dataset": true,
	}
	if !validPresets[c.Index.Preset] {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: index.preset must be one of [default, high_quality, ultra_fast, small_dataset, large_dataset], got %q",
			c.Index.Preset,
		))
	}

	for name, val := range map[string]int{
		"index.max_connections":       c.Index.MaxConnections,
		"index.ef_construction":       c.Index.EfConstruction,
		"index.ef_search":             c.Index.EfSearch,
		"index.max_elements":          c.Index.MaxElements,
		"index.max_layers":            c.Index.MaxLayers,
		"index.linear_scan_threshold": c.Index.LinearScanThreshold,
		"index.rebuild_threshold":     c.Index.RebuildThreshold,
	} {
		if val < 0 {
			errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
				"config: %s must not be negative, got %d", name, val))
		}
	}

	if c.Index.MaxConnections > 0 && c.Index.EfConstruction > 0 && c.Index.EfConstruction < c.Index.MaxConnections {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: index.ef_construction (%d) must be at least index.max_connections (%d)",
			c.Index.EfConstruction, c.Index.MaxConnections,
		))
	}

	return errs
}

func (c *Config) validatePromotion() []error {
	var errs []error

	validEngines := map[string]bool{"rules": true, "ml": true}
	if !validEngines[c.Promotion.Engine] {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.engine must be one of [rules, ml], got %q",
			c.Promotion.Engine,
		))
	}

	if c.Promotion.IntervalMinutes <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.interval_minutes must be greater than 0, got %d",
			c.Promotion.IntervalMinutes,
		))
	}

	if c.Promotion.InteractTTLHours <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.interact_ttl_hours must be greater than 0, got %g",
			c.Promotion.InteractTTLHours,
		))
	}

	if c.Promotion.InsightsTTLDays <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.insights_ttl_days must be greater than 0, got %g",
			c.Promotion.InsightsTTLDays,
		))
	}

	if c.Promotion.PromoteThreshold < 0 || c.Promotion.PromoteThreshold > 1 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.promote_threshold must be in [0, 1], got %g",
			c.Promotion.PromoteThreshold,
		))
	}

	if c.Promotion.DecayFactor <= 0 || c.Promotion.DecayFactor > 1 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.decay_factor must be in (0, 1], got %g",
			c.Promotion.DecayFactor,
		))
	}

	ml := c.Promotion.ML
	if ml.TemporalWeight < 0 || ml.SemanticWeight < 0 || ml.UsageWeight < 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.ml weights must not be negative, got [%g, %g, %g]",
			ml.TemporalWeight, ml.SemanticWeight, ml.UsageWeight,
		))
	}
	if ml.TemporalWeight+ml.SemanticWeight+ml.UsageWeight == 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.ml weights must not all be zero"))
	}
	if ml.PromotionThreshold <= 0 || ml.PromotionThreshold >= 1 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.ml.promotion_threshold must be in (0, 1), got %g",
			ml.PromotionThreshold,
		))
	}
	if ml.BatchSize <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: promotion.ml.batch_size must be greater than 0, got %d",
			ml.BatchSize,
		))
	}

	return errs
}

func (c *Config) validateQuery() []error {
	var errs []error

	if c.Query.TopK <= 0 {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: query.top_k must be greater than 0, got %d",
			c.Query.TopK,
		))
	}

	if c.Provider.EmbeddingModel == "" {
		errs = append(errs, strataerr.Errorf(strataerr.CodeConfigValidateInvalidValue,
			"config: provider.embedding_model must not be empty"))
	}

	return errs
}
