// Package engine runs the aggregation pass: for each active group it
// fetches the feed, expands occurrences over the forward window,
// normalizes them into records and reconciles those against the store.
// Groups are independent; one broken feed never blocks the rest.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"calsync/internal/cache"
	"calsync/internal/groups"
	"calsync/internal/ics"
	"calsync/internal/model"
	"calsync/internal/store"
)

// Fetcher retrieves one group's feed, short-circuiting when its content
// hash matches the cache.
type Fetcher interface {
	Fetch(ctx context.Context, groupID, url string) (ics.FetchResult, error)
}

// Summary is the best-effort outcome of one pass.
type Summary struct {
	GroupsProcessed    int
	GroupsSkipped      int
	GroupsErrored      int
	EventsWritten      int
	EventsDeleted      int
	EventsSkippedNoURL int
}

// Options tune a pass.
type Options struct {
	// Timezone events are localized into for partitioning and display.
	Location *time.Location
	// WindowDays is how far ahead recurrences are expanded.
	WindowDays int
	// Concurrency caps parallel group pipelines.
	Concurrency int
	// Retries is how many times a failed group pipeline is re-run within
	// one pass. Retries happen at the group level, never per chunk, so a
	// half-applied diff is always re-derived from fresh store state.
	Retries int
	// RetryBackoff is the base delay between group retries.
	RetryBackoff time.Duration
}

// Engine wires the pipeline stages together.
type Engine struct {
	registry groups.Registry
	fetcher  Fetcher
	cache    cache.FeedCache
	store    store.EventStore
	opts     Options

	// now is stubbed in tests.
	now func() time.Time
}

func New(reg groups.Registry, f Fetcher, c cache.FeedCache, s store.EventStore, opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = 90
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	return &Engine{
		registry: reg,
		fetcher:  f,
		cache:    c,
		store:    s,
		opts:     opts,
		now:      time.Now,
	}
}

// Run executes one synchronization pass. Only registry or store
// unavailability aborts it; per-group failures are absorbed into the
// summary. Invocations are expected to be serialized by the caller.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if err := e.store.Ping(ctx); err != nil {
		return Summary{}, err
	}

	gs, err := e.registry.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing groups: %w", err)
	}

	start := e.now()
	slog.Info("pass starting", "groups", len(gs), "window_days", e.opts.WindowDays)

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, e.opts.Concurrency)
	)

	for _, g := range gs {
		wg.Add(1)
		sem <- struct{}{}
		go func(g model.Group) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := e.syncGroupWithRetry(ctx, g)

			mu.Lock()
			defer mu.Unlock()
			summary.EventsWritten += res.written
			summary.EventsDeleted += res.deleted
			summary.EventsSkippedNoURL += res.skippedNoURL
			switch {
			case err != nil:
				summary.GroupsErrored++
				slog.Error("group failed", "group", g.ID, "error", err)
			case res.unchanged:
				summary.GroupsSkipped++
			default:
				summary.GroupsProcessed++
			}
		}(g)
	}

	wg.Wait()

	slog.Info("pass finished",
		"elapsed", e.now().Sub(start),
		"processed", summary.GroupsProcessed,
		"skipped", summary.GroupsSkipped,
		"errored", summary.GroupsErrored,
		"written", summary.EventsWritten,
		"deleted", summary.EventsDeleted,
		"skipped_no_url", summary.EventsSkippedNoURL,
	)

	return summary, nil
}

type groupResult struct {
	unchanged    bool
	written      int
	deleted      int
	skippedNoURL int
}

func (e *Engine) syncGroupWithRetry(ctx context.Context, g model.Group) (groupResult, error) {
	var res groupResult
	var err error

	for attempt := 0; ; attempt++ {
		res, err = e.syncGroup(ctx, g)
		if err == nil || attempt >= e.opts.Retries || ctx.Err() != nil {
			return res, err
		}

		// A malformed payload is not transient; re-fetching it within the
		// same pass buys nothing.
		var perr *ics.ParseError
		if errors.As(err, &perr) {
			return res, err
		}

		delay := e.opts.RetryBackoff * time.Duration(attempt+1)
		slog.Warn("retrying group", "group", g.ID, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// syncGroup runs the full pipeline for one group. It is idempotent:
// re-running it recomputes the same diff against fresh store state, so a
// retry after a partial write converges.
func (e *Engine) syncGroup(ctx context.Context, g model.Group) (groupResult, error) {
	var res groupResult

	fetched, err := e.fetcher.Fetch(ctx, g.ID, g.FeedURL)
	if err != nil {
		return res, err
	}
	if fetched.Unchanged {
		res.unchanged = true
		return res, nil
	}

	now := e.now()
	windowEnd := now.AddDate(0, 0, e.opts.WindowDays)

	occurrences, err := ics.Expand(fetched.Body, now, windowEnd)
	if err != nil {
		return res, err
	}

	records := make([]model.EventRecord, 0, len(occurrences))
	for _, occ := range occurrences {
		rec, ok := Normalize(occ, g, e.opts.Location, now)
		if !ok {
			res.skippedNoURL++
			continue
		}
		records = append(records, rec)
	}

	// The snapshot of existing keys is read before any delete from this
	// pass is applied.
	existing, err := e.store.KeysForGroup(ctx, g.ID)
	if err != nil {
		return res, err
	}

	puts, deletes := Reconcile(records, existing)

	applied, err := e.store.Apply(ctx, puts, deletes)
	res.written = applied.PutsApplied
	res.deleted = applied.DeletesApplied
	if err != nil {
		return res, err
	}

	// Only a fully successful pass updates the cache; a failed group
	// stays eligible for reprocessing on the next run.
	if cerr := e.cache.Put(ctx, g.ID, cache.Entry{Body: fetched.Body, Hash: fetched.Hash}); cerr != nil {
		slog.Warn("feed cache write failed", "group", g.ID, "error", cerr)
	}

	slog.Debug("group synced", "group", g.ID,
		"occurrences", len(occurrences), "puts", len(puts), "deletes", len(deletes))

	return res, nil
}
