package cache

import (
	"fmt"
	"time"
)

type entryState uint8

const (
	entryMissing entryState = iota
	entryLive
	entryExpired
)

// store maps keys to values and owns the expiration index. Expired entries
// may remain physically present until a read or a sweep reclaims them, but
// lookup never reports them as live. Callers hold the engine lock.
type store struct {
	entries map[string]Value
	expiry  *expiryIndex
	maxKeys int
}

func newStore(maxKeys int) *store {
	return &store{
		entries: make(map[string]Value),
		expiry:  newExpiryIndex(),
		maxKeys: maxKeys,
	}
}

// lookup returns the entry for key along with whether it is live, expired
// or missing at now.
func (s *store) lookup(key string, now time.Time) (Value, entryState) {
	v, ok := s.entries[key]
	if !ok {
		return Value{}, entryMissing
	}
	if s.expiry.isExpired(key, now) {
		return Value{}, entryExpired
	}
	return v, entryLive
}

// put inserts or overwrites key, replacing both value and expiration.
// A zero expiresAt means the entry never expires. It fails only when the
// store is bounded and full of live entries.
func (s *store) put(key string, v Value, expiresAt, now time.Time) error {
	if _, exists := s.entries[key]; !exists && s.maxKeys > 0 && len(s.entries) >= s.maxKeys {
		s.sweep(now, 0)
		if len(s.entries) >= s.maxKeys {
			return fmt.Errorf("%w: store is full (%d keys)", ErrInternal, s.maxKeys)
		}
	}
	s.restore(key, v, expiresAt)
	return nil
}

// restore writes key without the capacity check. Batch rollback uses it to
// put back entries that were present before the batch started.
func (s *store) restore(key string, v Value, expiresAt time.Time) {
	s.entries[key] = v
	s.expiry.set(key, expiresAt)
}

// remove drops key from the entries and the expiration index.
func (s *store) remove(key string) bool {
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	s.expiry.remove(key)
	return true
}

// removeIfExpired drops key only if it is still expired at now. A
// concurrent overwrite between the read and the reap keeps the new value.
func (s *store) removeIfExpired(key string, now time.Time) bool {
	if _, state := s.lookup(key, now); state != entryExpired {
		return false
	}
	return s.remove(key)
}

// keys returns the live keys at now and, separately, the keys found expired.
func (s *store) keys(now time.Time) (live, expired []string) {
	live = make([]string, 0, len(s.entries))
	for k := range s.entries {
		if s.expiry.isExpired(k, now) {
			expired = append(expired, k)
			continue
		}
		live = append(live, k)
	}
	return live, expired
}

// liveCount is the number of entries that have not expired at now.
func (s *store) liveCount(now time.Time) int {
	return len(s.entries) - s.expiry.countDue(now)
}

// expiringCount is the number of live entries that carry an expiration.
func (s *store) expiringCount(now time.Time) int {
	return s.expiry.len() - s.expiry.countDue(now)
}

// clear drops every entry and returns how many of them were live.
func (s *store) clear(now time.Time) int {
	n := s.liveCount(now)
	s.entries = make(map[string]Value)
	s.expiry.reset()
	return n
}

// sweep removes up to limit entries that expired at or before now and
// returns their keys. limit <= 0 removes all of them.
func (s *store) sweep(now time.Time, limit int) []string {
	keys := s.expiry.popDue(now, limit)
	for _, k := range keys {
		delete(s.entries, k)
	}
	return keys
}
