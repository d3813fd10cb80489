package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oriys/kvcache/internal/observability"
)

// KeyResult is one entry of a MultiGet response.
type KeyResult struct {
	Key   string
	Value Value
	Found bool
}

// MultiGet reads keys in one snapshot and returns one result per requested
// key, in request order and including duplicates. Each key counts as one
// read for the hit/miss counters.
func (e *Engine) MultiGet(ctx context.Context, keys []string) (results []KeyResult, err error) {
	done := e.track(ctx, OpMultiGet, observability.AttrCacheKeyCount.Int(len(keys)))
	defer func() { done(err) }()

	if len(keys) == 0 {
		return nil, invalidf("keys must be a non-empty list")
	}

	results = make([]KeyResult, len(keys))
	var expired []string
	e.mu.RLock()
	now := e.now()
	for i, k := range keys {
		v, state := e.store.lookup(k, now)
		results[i] = KeyResult{Key: k, Value: v, Found: state == entryLive}
		if state == entryExpired {
			expired = append(expired, k)
		}
	}
	e.mu.RUnlock()

	e.reap(expired)
	for _, r := range results {
		e.recordRead(r.Found)
	}
	return results, nil
}

// MultiSet writes every pair with no expiration. Either all pairs are
// applied or, if the store faults partway, none are.
func (e *Engine) MultiSet(ctx context.Context, items map[string]Value) (n int, err error) {
	done := e.track(ctx, OpMultiSet, observability.AttrCacheKeyCount.Int(len(items)))
	defer func() { done(err) }()

	return e.multiSet(items, 0, false)
}

// MultiSetWithTTL is MultiSet with every pair expiring ttl from now.
func (e *Engine) MultiSetWithTTL(ctx context.Context, items map[string]Value, ttl time.Duration) (n int, err error) {
	done := e.track(ctx, OpMultiSet, observability.AttrCacheKeyCount.Int(len(items)))
	defer func() { done(err) }()

	return e.multiSet(items, ttl, true)
}

func (e *Engine) multiSet(items map[string]Value, ttl time.Duration, withTTL bool) (int, error) {
	if len(items) == 0 {
		return 0, invalidf("data must be a non-empty object")
	}
	if withTTL {
		if err := validateTTL(ttl); err != nil {
			return 0, err
		}
	}
	keys := make([]string, 0, len(items))
	for k, v := range items {
		if err := validateWrite(k, v); err != nil {
			return 0, fmt.Errorf("key %q: %w", k, err)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	var expiresAt time.Time
	if withTTL {
		expiresAt = now.Add(ttl)
	}
	if err := e.store.applyBatch(keys, items, expiresAt, now); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// undoRecord captures what a key looked like before a batch wrote it.
type undoRecord struct {
	key       string
	existed   bool
	prev      Value
	expiresAt time.Time
}

// applyBatch writes keys in order. On the first failure, or a panic, every
// write already applied is reverted in reverse order.
func (s *store) applyBatch(keys []string, items map[string]Value, expiresAt, now time.Time) (err error) {
	undo := make([]undoRecord, 0, len(keys))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: batch write aborted: %v", ErrInternal, r)
		}
		if err != nil {
			s.rollback(undo)
		}
	}()

	for _, k := range keys {
		rec := undoRecord{key: k}
		rec.prev, rec.existed = s.entries[k]
		rec.expiresAt, _ = s.expiry.expiresAt(k)
		if err := s.put(k, items[k], expiresAt, now); err != nil {
			return fmt.Errorf("batch write %q: %w", k, err)
		}
		undo = append(undo, rec)
	}
	return nil
}

func (s *store) rollback(undo []undoRecord) {
	for i := len(undo) - 1; i >= 0; i-- {
		rec := undo[i]
		if rec.existed {
			s.restore(rec.key, rec.prev, rec.expiresAt)
			continue
		}
		s.remove(rec.key)
	}
}
