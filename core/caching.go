package core

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/protonlab/scantime/core/doserate"
	"github.com/protonlab/scantime/internal/contract"
	"github.com/protonlab/scantime/schema"
)

// currentCacheVersion defines the version of the cached timeline layout
const currentCacheVersion = 1

// cacheTTL bounds the age of a reusable timeline.
const cacheTTL = 30 * 24 * time.Hour

// CachedAnalyzePlan returns the timeline of the record, reusing a stored one when the
// plan content, limits, encoding and doserate table are unchanged.
func CachedAnalyzePlan(ctx context.Context, cfg *contract.Config, record *schema.PlanRecord, provider *doserate.Provider, mgr contract.CacheManager) (*schema.Plan, error) {
	var store contract.CacheStore
	if mgr != nil {
		store = mgr.GetTimelineStore()
	}
	if store == nil || record.Digest == "" {
		// Fallback to direct computation
		return AnalyzePlan(ctx, cfg, record, provider)
	}

	key := generateCacheKey(cfg, record, provider)

	// Check for cache hit
	if plan := checkCacheHit(store, key); plan != nil {
		plan.SourcePath = record.SourcePath
		return plan, nil
	}

	// Cache miss: compute and store
	return computeAndStore(ctx, cfg, record, provider, store, key)
}

// checkCacheHit attempts to retrieve and validate a cached timeline
func checkCacheHit(store contract.CacheStore, key string) *schema.Plan {
	data, version, ts, err := store.Get(key)
	if err != nil {
		return nil // Cache miss
	}

	// Validate version and staleness
	if version == currentCacheVersion {
		entryTimestamp := time.Unix(ts, 0)
		if time.Since(entryTimestamp) <= cacheTTL {
			var plan schema.Plan
			if err := json.Unmarshal(data, &plan); err == nil {
				return &plan // Cache hit
			}
		}
	}

	return nil // Cache miss (stale or version mismatch)
}

// computeAndStore computes the timeline and stores it in cache
func computeAndStore(ctx context.Context, cfg *contract.Config, record *schema.PlanRecord, provider *doserate.Provider, store contract.CacheStore, key string) (*schema.Plan, error) {
	plan, err := AnalyzePlan(ctx, cfg, record, provider)
	if err != nil {
		return nil, err
	}

	// Layers timed without a ceiling are not worth keeping.
	if provider != nil && provider.Err() != nil {
		return plan, nil
	}
	data, err := json.Marshal(plan)
	if err != nil {
		contract.LogWarn("Timeline cannot be cached", err)
		return plan, nil
	}
	if err := store.Set(key, data, currentCacheVersion, time.Now().Unix()); err != nil {
		contract.LogWarn("Timeline cache write failed", err)
	}

	return plan, nil
}

// generateCacheKey creates a unique key from everything that shapes a timeline
func generateCacheKey(cfg *contract.Config, record *schema.PlanRecord, provider *doserate.Provider) string {
	tableDigest := ""
	if provider != nil {
		tableDigest = provider.Digest()
	}

	key := fmt.Sprintf("%s:%g:%g:%g:%g:%s:%g:%s:%t:%t:%t:%s:%d",
		record.Digest,
		cfg.MinDoseRate,
		cfg.MaxSpeed,
		cfg.MinSpeed,
		cfg.TimeResolution,
		cfg.SpotEncoding,
		cfg.PositionScale,
		tableDigest,
		cfg.Strict,
		cfg.NormalizeWeights,
		cfg.IncludeSetup,
		cfg.BeamFilter,
		currentCacheVersion,
	)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
}
