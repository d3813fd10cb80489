package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/oriys/kvcache/internal/logging"
	"github.com/oriys/kvcache/internal/observability"
)

// Operation names used for metrics, spans and logs.
const (
	OpGet          = "get"
	OpSet          = "set"
	OpSetWithTTL   = "set_with_ttl"
	OpUpdateTTL    = "update_ttl"
	OpDelete       = "delete"
	OpClear        = "clear"
	OpMultiGet     = "mget"
	OpMultiSet     = "mset"
	OpSearch       = "search"
	OpPurgePattern = "purge_pattern"
	OpStats        = "stats"
)

const defaultSweepBatchSize = 256

// Config controls engine behavior. The zero value is usable: no background
// sweep, unbounded store, wall clock, no observer.
type Config struct {
	// SweepInterval is how often expired entries are actively reclaimed.
	// <= 0 disables the sweeper; lazy expiration still applies.
	SweepInterval time.Duration

	// SweepBatchSize bounds how many entries one sweep removes per lock
	// acquisition.
	SweepBatchSize int

	// MaxKeys bounds the number of stored entries. Writes that would exceed
	// it fail with ErrInternal. <= 0 means unbounded.
	MaxKeys int

	// Now overrides the clock, mostly for tests.
	Now func() time.Time

	Observer Observer
}

// Engine is a concurrency-safe in-memory cache. A single RWMutex guards the
// entry store and expiration index; counters are atomic and live outside it.
//
// Engine owns its sweeper goroutine. Call Close to stop it.
type Engine struct {
	mu    sync.RWMutex
	store *store
	stats Stats

	now        func() time.Time
	observer   Observer
	sweepEvery time.Duration
	sweepBatch int
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// New constructs an engine and starts the sweeper if enabled.
func New(cfg Config) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:      newStore(cfg.MaxKeys),
		now:        cfg.Now,
		observer:   cfg.Observer,
		sweepEvery: cfg.SweepInterval,
		sweepBatch: cfg.SweepBatchSize,
		ctx:        ctx,
		cancel:     cancel,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}
	if e.sweepBatch <= 0 {
		e.sweepBatch = defaultSweepBatchSize
	}
	e.startedAt = e.now()

	if e.sweepEvery > 0 {
		e.wg.Add(1)
		go e.sweepLoop()
	}
	return e
}

// Close stops the sweeper. Stored data stays readable until the engine is
// dropped. Close is safe to call multiple times.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		e.wg.Wait()
	})
	return nil
}

// Get returns the live value for key. A missing or expired key is reported
// with found == false and counts as a miss.
func (e *Engine) Get(ctx context.Context, key string) (v Value, found bool, err error) {
	done := e.track(ctx, OpGet, observability.AttrCacheKey.String(key))
	defer func() { done(err) }()

	if key == "" {
		return Value{}, false, invalidf("key is required")
	}
	v, found = e.read(key)
	e.recordRead(found)
	return v, found, nil
}

// Set stores value under key with no expiration, replacing any previous
// value and expiration.
func (e *Engine) Set(ctx context.Context, key string, value Value) (err error) {
	done := e.track(ctx, OpSet, observability.AttrCacheKey.String(key))
	defer func() { done(err) }()

	if err := validateWrite(key, value); err != nil {
		return err
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.put(key, value, time.Time{}, now)
}

// SetWithTTL stores value under key expiring ttl from now and returns the
// absolute expiration time.
func (e *Engine) SetWithTTL(ctx context.Context, key string, value Value, ttl time.Duration) (expiresAt time.Time, err error) {
	done := e.track(ctx, OpSetWithTTL, observability.AttrCacheKey.String(key))
	defer func() { done(err) }()

	if err := validateWrite(key, value); err != nil {
		return time.Time{}, err
	}
	if err := validateTTL(ttl); err != nil {
		return time.Time{}, err
	}
	now := e.now()
	expiresAt = now.Add(ttl)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.put(key, value, expiresAt, now); err != nil {
		return time.Time{}, err
	}
	return expiresAt, nil
}

// UpdateTTL moves the expiration of an existing key to ttl from now. It
// never creates a key: a missing or expired key yields ErrNotFound.
func (e *Engine) UpdateTTL(ctx context.Context, key string, ttl time.Duration) (expiresAt time.Time, err error) {
	done := e.track(ctx, OpUpdateTTL, observability.AttrCacheKey.String(key))
	defer func() { done(err) }()

	if key == "" {
		return time.Time{}, invalidf("key is required")
	}
	if err := validateTTL(ttl); err != nil {
		return time.Time{}, err
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	switch _, state := e.store.lookup(key, now); state {
	case entryMissing:
		return time.Time{}, notFound(key)
	case entryExpired:
		e.store.remove(key)
		e.observer.ObserveExpired(ExpiredLazy, 1)
		return time.Time{}, notFound(key)
	}
	expiresAt = now.Add(ttl)
	e.store.expiry.set(key, expiresAt)
	return expiresAt, nil
}

// Delete removes key. Deleting a missing or expired key yields ErrNotFound,
// so repeated deletes of the same key keep reporting ErrNotFound.
func (e *Engine) Delete(ctx context.Context, key string) (err error) {
	done := e.track(ctx, OpDelete, observability.AttrCacheKey.String(key))
	defer func() { done(err) }()

	if key == "" {
		return invalidf("key is required")
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	_, state := e.store.lookup(key, now)
	e.store.remove(key)
	switch state {
	case entryLive:
		return nil
	case entryExpired:
		e.observer.ObserveExpired(ExpiredLazy, 1)
	}
	return notFound(key)
}

// Clear removes every entry and returns how many live entries were dropped.
// confirmed must be true; otherwise nothing is touched and
// ErrPreconditionFailed is returned.
func (e *Engine) Clear(ctx context.Context, confirmed bool) (removed int, err error) {
	done := e.track(ctx, OpClear)
	defer func() { done(err) }()

	if !confirmed {
		return 0, errConfirmationRequired
	}
	now := e.now()
	e.mu.Lock()
	removed = e.store.clear(now)
	e.mu.Unlock()
	logging.FromContext(ctx).Info("cache cleared", "removed", removed)
	return removed, nil
}

// Search returns the live keys matching pattern, sorted.
func (e *Engine) Search(ctx context.Context, pattern string) (keys []string, err error) {
	done := e.track(ctx, OpSearch, observability.AttrCachePattern.String(pattern))
	defer func() { done(err) }()

	p, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	live, expired := e.store.keys(e.now())
	e.mu.RUnlock()
	e.reap(expired)
	return p.Filter(live), nil
}

// PurgePattern deletes every key matching pattern and returns how many live
// entries were removed.
func (e *Engine) PurgePattern(ctx context.Context, pattern string) (removed int, err error) {
	done := e.track(ctx, OpPurgePattern, observability.AttrCachePattern.String(pattern))
	defer func() { done(err) }()

	p, err := CompilePattern(pattern)
	if err != nil {
		return 0, err
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.store.entries {
		if !p.Match(key) {
			continue
		}
		if _, state := e.store.lookup(key, now); state == entryLive {
			removed++
		}
		e.store.remove(key)
	}
	return removed, nil
}

// Stats returns the counters plus derived store information.
func (e *Engine) Stats(ctx context.Context) EngineStats {
	done := e.track(ctx, OpStats)
	defer done(nil)

	now := e.now()
	e.mu.RLock()
	keys := e.store.liveCount(now)
	expiring := e.store.expiringCount(now)
	e.mu.RUnlock()
	return EngineStats{
		StatsSnapshot: e.stats.Snapshot(),
		Keys:          keys,
		ExpiringKeys:  expiring,
		StartedAt:     e.startedAt,
		Uptime:        now.Sub(e.startedAt),
	}
}

// KeyCount returns the number of live keys.
func (e *Engine) KeyCount() int {
	now := e.now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.liveCount(now)
}

// ExpiringKeyCount returns the number of live keys that carry a TTL.
func (e *Engine) ExpiringKeyCount() int {
	now := e.now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.expiringCount(now)
}

// Uptime reports how long the engine has been running.
func (e *Engine) Uptime() time.Duration {
	return e.now().Sub(e.startedAt)
}

// SweepExpired reclaims every entry that has expired, taking the lock in
// batches of SweepBatchSize so a large backlog does not stall other callers.
func (e *Engine) SweepExpired() int {
	total := 0
	for {
		e.mu.Lock()
		removed := e.store.sweep(e.now(), e.sweepBatch)
		e.mu.Unlock()
		total += len(removed)
		if len(removed) < e.sweepBatch {
			break
		}
	}
	if total > 0 {
		e.observer.ObserveExpired(ExpiredSweep, total)
	}
	return total
}

func (e *Engine) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if n := e.SweepExpired(); n > 0 {
				logging.Op().Debug("expired keys reclaimed", "count", n)
			}
		}
	}
}

// read returns the live value for key, reclaiming it if it has expired.
func (e *Engine) read(key string) (Value, bool) {
	e.mu.RLock()
	v, state := e.store.lookup(key, e.now())
	e.mu.RUnlock()
	switch state {
	case entryLive:
		return v, true
	case entryExpired:
		e.reap([]string{key})
	}
	return Value{}, false
}

// reap removes keys that were observed expired under the read lock. Each
// key is re-checked under the write lock since it may have been rewritten
// in between.
func (e *Engine) reap(keys []string) {
	if len(keys) == 0 {
		return
	}
	n := 0
	e.mu.Lock()
	now := e.now()
	for _, k := range keys {
		if e.store.removeIfExpired(k, now) {
			n++
		}
	}
	e.mu.Unlock()
	if n > 0 {
		e.observer.ObserveExpired(ExpiredLazy, n)
	}
}

func (e *Engine) recordRead(hit bool) {
	if hit {
		e.stats.RecordHit()
	} else {
		e.stats.RecordMiss()
	}
	e.observer.ObserveRead(hit)
}

// track counts a command and opens a span for it. The returned func closes
// the span and reports the outcome.
func (e *Engine) track(ctx context.Context, op string, attrs ...attribute.KeyValue) func(error) {
	e.stats.RecordCommand()
	start := time.Now()
	attrs = append(attrs, observability.AttrCacheOp.String(op))
	_, span := observability.StartSpan(ctx, "cache."+op, attrs...)
	return func(err error) {
		kind := KindOf(err)
		e.observer.ObserveCommand(op, kind.String(), time.Since(start))
		switch kind {
		case KindNone, KindNotFound:
			observability.SetSpanOK(span)
		case KindInternal:
			observability.SetSpanError(span, err)
			logging.FromContext(ctx).Error("cache operation failed", "op", op, "error", err)
		default:
			observability.SetSpanError(span, err)
		}
		span.End()
	}
}

func validateWrite(key string, value Value) error {
	if key == "" {
		return invalidf("key is required")
	}
	if value.IsZero() {
		return invalidf("value is required")
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return invalidf("ttl must be positive, got %s", ttl)
	}
	return nil
}
