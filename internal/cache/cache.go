// Package cache implements OpportunityCache/DataStrategy (C3/C5):
// cached-first fetch of opportunities with TTL freshness, wholesale
// atomic refresh, and stale-serve-on-failure degraded mode.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/franksunye/fsoa-agent/internal/analytics"
	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/errs"
	"github.com/franksunye/fsoa-agent/internal/metrics"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
)

// Statistics mirrors the explicit record type Design Notes calls for in
// place of an ad-hoc string-keyed bag.
type Statistics struct {
	CacheEnabled    bool
	CacheTTLHours   float64
	TotalCached     int
	ValidCached     int
	OverdueCached   int
	Organizations   int
	CacheHitRatio   float64
	Stale           bool
}

// ConsistencyReport is the result of validate_data_consistency.
type ConsistencyReport struct {
	DataConsistent bool
	CachedCount    int
	FreshCount     int
}

// DataStrategy orchestrates the cache and the external AnalyticsClient.
type DataStrategy struct {
	backend    store.Store
	analytics  analytics.Client
	evaluator  *sla.Evaluator
	clock      calendar.Clock
	reportID   string

	mu          sync.Mutex
	ttl         time.Duration
	hits        int
	misses      int
	lastFailure error
}

// New builds a DataStrategy over the given backend store and analytics
// client, evaluating derived fields with evaluator and using clock as the
// source of "now".
func New(backend store.Store, client analytics.Client, evaluator *sla.Evaluator, clock calendar.Clock, reportID string, ttl time.Duration) *DataStrategy {
	return &DataStrategy{backend: backend, analytics: client, evaluator: evaluator, clock: clock, reportID: reportID, ttl: ttl}
}

func (d *DataStrategy) isFresh(ctx context.Context) bool {
	updated, ok := d.backend.CacheLastUpdated(ctx)
	if !ok {
		return false
	}
	return d.clock.Now().Sub(updated) < d.ttl
}

// RefreshCache unconditionally queries AnalyticsClient and wholesale
// replaces the cache snapshot. Returns (oldCount, newCount).
func (d *DataStrategy) RefreshCache(ctx context.Context) (int, int, error) {
	old, err := d.backend.ListCachedOpportunities(ctx)
	if err != nil {
		return 0, 0, err
	}

	raws, err := d.analytics.QueryReport(ctx, d.reportID)
	if err != nil {
		d.mu.Lock()
		d.lastFailure = err
		d.mu.Unlock()

		if len(old) > 0 {
			// Degrade to stale cache: never fail a run with a usable
			// cache still present.
			return len(old), len(old), nil
		}
		return len(old), 0, errs.Wrap(errs.DataFetchError, "refresh_cache", err)
	}

	d.mu.Lock()
	d.lastFailure = nil
	d.mu.Unlock()

	now := d.clock.Now()
	opps := analytics.ToOpportunities(raws, now.Location(), nil, now)
	if err := d.backend.ReplaceOpportunityCache(ctx, opps); err != nil {
		return len(old), 0, errs.Wrap(errs.CacheCorrupt, "replace cache", err)
	}
	return len(old), len(opps), nil
}

// ClearCache deletes the cache snapshot, returning the number removed.
func (d *DataStrategy) ClearCache(ctx context.Context) (int, error) {
	return d.backend.ClearOpportunityCache(ctx)
}

// GetAllOpportunities serves cache-first (refreshing on miss, staleness,
// or forceRefresh), with derived fields always recomputed against now.
func (d *DataStrategy) GetAllOpportunities(ctx context.Context, forceRefresh bool) ([]store.Opportunity, error) {
	fresh := d.isFresh(ctx)

	if forceRefresh || !fresh {
		_, _, err := d.RefreshCache(ctx)
		if err != nil {
			cached, cacheErr := d.backend.ListCachedOpportunities(ctx)
			if cacheErr != nil || len(cached) == 0 {
				return nil, err
			}
			d.mu.Lock()
			d.misses++
			d.mu.Unlock()
			return d.evaluator.EvaluateAll(cached, d.clock.Now()), nil
		}
	}

	d.mu.Lock()
	if fresh && !forceRefresh {
		d.hits++
	} else {
		d.misses++
	}
	d.mu.Unlock()

	cached, err := d.backend.ListCachedOpportunities(ctx)
	if err != nil {
		return nil, err
	}
	return d.evaluator.EvaluateAll(cached, d.clock.Now()), nil
}

// GetOverdueOpportunities filters to opportunities where IsOverdue.
func (d *DataStrategy) GetOverdueOpportunities(ctx context.Context, forceRefresh bool) ([]store.Opportunity, error) {
	all, err := d.GetAllOpportunities(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	var out []store.Opportunity
	for _, o := range all {
		if o.IsOverdue {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetApproachingOverdueOpportunities filters to the [0.8, 1.0) progress band.
func (d *DataStrategy) GetApproachingOverdueOpportunities(ctx context.Context) ([]store.Opportunity, error) {
	all, err := d.GetAllOpportunities(ctx, false)
	if err != nil {
		return nil, err
	}
	var out []store.Opportunity
	for _, o := range all {
		if sla.IsApproachingOverdue(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

// GetCacheStatistics reports the explicit Statistics record.
func (d *DataStrategy) GetCacheStatistics(ctx context.Context) (Statistics, error) {
	cached, err := d.backend.ListCachedOpportunities(ctx)
	if err != nil {
		return Statistics{}, err
	}

	now := d.clock.Now()
	evaluated := d.evaluator.EvaluateAll(cached, now)

	orgs := map[string]bool{}
	overdue := 0
	for _, o := range evaluated {
		orgs[o.OrgName] = true
		if o.IsOverdue {
			overdue++
		}
	}

	d.mu.Lock()
	total := d.hits + d.misses
	var ratio float64
	if total > 0 {
		ratio = float64(d.hits) / float64(total)
	}
	stale := d.lastFailure != nil
	d.mu.Unlock()
	metrics.CacheHitRatio.Set(ratio)

	return Statistics{
		CacheEnabled:  true,
		CacheTTLHours: d.ttl.Hours(),
		TotalCached:   len(evaluated),
		ValidCached:   len(evaluated),
		OverdueCached: overdue,
		Organizations: len(orgs),
		CacheHitRatio: ratio,
		Stale:         stale,
	}, nil
}

// ValidateDataConsistency compares the cached count with a fresh fetch
// count without mutating the cache.
func (d *DataStrategy) ValidateDataConsistency(ctx context.Context) (ConsistencyReport, error) {
	cached, err := d.backend.ListCachedOpportunities(ctx)
	if err != nil {
		return ConsistencyReport{}, err
	}

	raws, err := d.analytics.QueryReport(ctx, d.reportID)
	if err != nil {
		return ConsistencyReport{}, errs.Wrap(errs.DataFetchError, "validate_data_consistency", err)
	}

	return ConsistencyReport{
		DataConsistent: len(cached) == len(raws),
		CachedCount:    len(cached),
		FreshCount:     len(raws),
	}, nil
}

// LastFailure exposes the most recent AnalyticsClient error, if any, for
// logging by the orchestrator.
func (d *DataStrategy) LastFailure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFailure
}
