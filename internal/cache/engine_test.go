package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	if cfg.Now == nil {
		cfg.Now = clock.Now
	}
	e := New(cfg)
	t.Cleanup(func() { e.Close() })
	return e, clock
}

func TestEngine_SetGet(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	if err := e.Set(ctx, "greeting", TextValue("hello")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, found, err := e.Get(ctx, "greeting")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if v.Raw() != "hello" || v.IsJSON() {
		t.Fatalf("unexpected value %+v", v)
	}

	if err := e.Set(ctx, "greeting", TextValue("bye")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	v, _, _ = e.Get(ctx, "greeting")
	if v.Raw() != "bye" {
		t.Fatalf("expected overwritten value, got %q", v.Raw())
	}
}

func TestEngine_GetMissing(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	_, found, err := e.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Fatal("expected miss")
	}
	if s := e.Stats(context.Background()); s.Misses != 1 || s.Hits != 0 {
		t.Fatalf("unexpected counters %+v", s.StatsSnapshot)
	}
}

func TestEngine_InvalidInput(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	if err := e.Set(ctx, "", TextValue("x")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty key: expected ErrInvalidInput, got %v", err)
	}
	if err := e.Set(ctx, "k", Value{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero value: expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.SetWithTTL(ctx, "k", TextValue("x"), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ttl: expected ErrInvalidInput, got %v", err)
	}
	if _, err := e.SetWithTTL(ctx, "k", TextValue("x"), -time.Second); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative ttl: expected ErrInvalidInput, got %v", err)
	}
	if _, _, err := e.Get(ctx, ""); KindOf(err) != KindInvalidInput {
		t.Fatalf("empty get key: got %v", err)
	}
	if e.KeyCount() != 0 {
		t.Fatal("rejected writes must not create keys")
	}
}

func TestEngine_TTLBoundaryIsInclusive(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	expiresAt, err := e.SetWithTTL(ctx, "session", TextValue("abc"), 10*time.Second)
	if err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}
	if want := clock.Now().Add(10 * time.Second); !expiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, expiresAt)
	}

	clock.Advance(10*time.Second - time.Nanosecond)
	if _, found, _ := e.Get(ctx, "session"); !found {
		t.Fatal("key should be live just before expiry")
	}

	clock.Advance(time.Nanosecond)
	if _, found, _ := e.Get(ctx, "session"); found {
		t.Fatal("key should be expired at the expiry instant")
	}
	if n := len(e.store.entries); n != 0 {
		t.Fatalf("lazy expiration should reclaim the entry, %d left", n)
	}
}

func TestEngine_SetClearsTTL(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	if _, err := e.SetWithTTL(ctx, "k", TextValue("v1"), time.Second); err != nil {
		t.Fatal(err)
	}
	if err := e.Set(ctx, "k", TextValue("v2")); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	v, found, _ := e.Get(ctx, "k")
	if !found || v.Raw() != "v2" {
		t.Fatal("plain Set should replace the previous expiration")
	}
	if e.ExpiringKeyCount() != 0 {
		t.Fatalf("expected no expiring keys, got %d", e.ExpiringKeyCount())
	}
}

func TestEngine_UpdateTTL(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	if err := e.Set(ctx, "k", TextValue("v")); err != nil {
		t.Fatal(err)
	}
	expiresAt, err := e.UpdateTTL(ctx, "k", 5*time.Second)
	if err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}
	if !expiresAt.Equal(clock.Now().Add(5 * time.Second)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	clock.Advance(4 * time.Second)
	if _, err := e.UpdateTTL(ctx, "k", 5*time.Second); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	clock.Advance(4 * time.Second)
	if _, found, _ := e.Get(ctx, "k"); !found {
		t.Fatal("extended key should still be live")
	}
	clock.Advance(time.Second)
	if _, found, _ := e.Get(ctx, "k"); found {
		t.Fatal("key should expire at the extended deadline")
	}
}

func TestEngine_UpdateTTLNeverCreates(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	if _, err := e.UpdateTTL(ctx, "ghost", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if e.KeyCount() != 0 || e.ExpiringKeyCount() != 0 {
		t.Fatal("UpdateTTL must not create a key")
	}

	if _, err := e.SetWithTTL(ctx, "short", TextValue("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if _, err := e.UpdateTTL(ctx, "short", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired key: expected ErrNotFound, got %v", err)
	}
	if _, err := e.UpdateTTL(ctx, "short", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ttl: expected ErrInvalidInput, got %v", err)
	}
}

func TestEngine_Delete(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	if err := e.Set(ctx, "k", TextValue("v")); err != nil {
		t.Fatal(err)
	}
	if err := e.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := e.Get(ctx, "k"); found {
		t.Fatal("deleted key should be gone")
	}
	for i := 0; i < 2; i++ {
		if err := e.Delete(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("repeat delete %d: expected ErrNotFound, got %v", i, err)
		}
	}

	if _, err := e.SetWithTTL(ctx, "temp", TextValue("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)
	if err := e.Delete(ctx, "temp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired key: expected ErrNotFound, got %v", err)
	}
	if len(e.store.entries) != 0 {
		t.Fatal("expired entry should be reclaimed by delete")
	}
}

func TestEngine_Clear(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := e.Set(ctx, fmt.Sprintf("k%d", i), TextValue("v")); err != nil {
			t.Fatal(err)
		}
	}

	n, err := e.Clear(ctx, false)
	if !errors.Is(err, ErrPreconditionFailed) || n != 0 {
		t.Fatalf("unconfirmed clear: n=%d err=%v", n, err)
	}
	if e.KeyCount() != 3 {
		t.Fatal("unconfirmed clear must not touch the store")
	}

	n, err = e.Clear(ctx, true)
	if err != nil || n != 3 {
		t.Fatalf("confirmed clear: n=%d err=%v", n, err)
	}
	if e.KeyCount() != 0 {
		t.Fatal("store should be empty")
	}
}

func TestEngine_SearchUserPattern(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	for _, k := range []string{"user:2", "user:1", "session:1", "users"} {
		if err := e.Set(ctx, k, TextValue("v")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.SetWithTTL(ctx, "user:3", TextValue("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	keys, err := e.Search(ctx, "user:*")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "user:1" || keys[1] != "user:2" {
		t.Fatalf("expected [user:1 user:2], got %v", keys)
	}

	keys, _ = e.Search(ctx, "user?")
	if len(keys) != 1 || keys[0] != "users" {
		t.Fatalf("expected [users], got %v", keys)
	}

	keys, _ = e.Search(ctx, "nothing*")
	if keys == nil || len(keys) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", keys)
	}

	if _, err := e.Search(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty pattern: expected ErrInvalidInput, got %v", err)
	}
}

func TestEngine_PurgePattern(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	for _, k := range []string{"user:1", "user:2", "order:1"} {
		if err := e.Set(ctx, k, TextValue("v")); err != nil {
			t.Fatal(err)
		}
	}
	n, err := e.PurgePattern(ctx, "user:*")
	if err != nil || n != 2 {
		t.Fatalf("PurgePattern: n=%d err=%v", n, err)
	}
	if e.KeyCount() != 1 {
		t.Fatalf("expected 1 key left, got %d", e.KeyCount())
	}
}

func TestEngine_StatsCounters(t *testing.T) {
	e, clock := newTestEngine(t, Config{})
	ctx := context.Background()

	s := e.Stats(ctx)
	if s.HitRate != HitRateNotApplicable {
		t.Fatalf("expected N/A before any reads, got %q", s.HitRate)
	}
	if s.CommandsProcessed != 1 {
		t.Fatalf("the stats call itself should count, got %d", s.CommandsProcessed)
	}

	if err := e.Set(ctx, "a", TextValue("1")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SetWithTTL(ctx, "b", TextValue("2"), time.Minute); err != nil {
		t.Fatal(err)
	}
	e.Get(ctx, "a")
	e.Get(ctx, "a")
	e.Get(ctx, "b")
	e.Get(ctx, "missing")

	clock.Advance(30 * time.Second)
	s = e.Stats(ctx)
	if s.Hits != 3 || s.Misses != 1 {
		t.Fatalf("unexpected hits/misses %d/%d", s.Hits, s.Misses)
	}
	if s.HitRate != "75.00%" {
		t.Fatalf("expected 75.00%%, got %q", s.HitRate)
	}
	// stats + 2 sets + 4 gets + stats
	if s.CommandsProcessed != 8 {
		t.Fatalf("expected 8 commands, got %d", s.CommandsProcessed)
	}
	if s.Keys != 2 || s.ExpiringKeys != 1 {
		t.Fatalf("expected 2 keys / 1 expiring, got %d / %d", s.Keys, s.ExpiringKeys)
	}
	if s.Uptime != 30*time.Second {
		t.Fatalf("expected 30s uptime, got %s", s.Uptime)
	}

	clock.Advance(time.Minute)
	s = e.Stats(ctx)
	if s.Keys != 1 || s.ExpiringKeys != 0 {
		t.Fatalf("expired keys must not be counted, got %d / %d", s.Keys, s.ExpiringKeys)
	}
}

func TestEngine_SweepExpiredInBatches(t *testing.T) {
	obs := &recordingObserver{}
	e, clock := newTestEngine(t, Config{SweepBatchSize: 4, Observer: obs})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := e.SetWithTTL(ctx, fmt.Sprintf("k%d", i), TextValue("v"), time.Second); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Set(ctx, "keep", TextValue("v")); err != nil {
		t.Fatal(err)
	}

	if n := e.SweepExpired(); n != 0 {
		t.Fatalf("nothing should be due yet, swept %d", n)
	}
	clock.Advance(time.Second)
	if n := e.SweepExpired(); n != 10 {
		t.Fatalf("expected 10 swept, got %d", n)
	}
	if len(e.store.entries) != 1 || e.store.expiry.len() != 0 {
		t.Fatalf("sweep left %d entries, %d expiry records", len(e.store.entries), e.store.expiry.len())
	}
	if obs.expired(ExpiredSweep) != 10 {
		t.Fatalf("observer saw %d swept", obs.expired(ExpiredSweep))
	}
}

func TestEngine_BackgroundSweeper(t *testing.T) {
	clock := newFakeClock()
	e := New(Config{SweepInterval: 5 * time.Millisecond, Now: clock.Now})
	defer e.Close()

	if _, err := e.SetWithTTL(context.Background(), "k", TextValue("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		e.mu.RLock()
		n := len(e.store.entries)
		e.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not reclaim the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestEngine_ConcurrentAccess(t *testing.T) {
	e, _ := newTestEngine(t, Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("w%d:k%d", w, i)
				if err := e.Set(ctx, key, TextValue("v")); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				if _, found, _ := e.Get(ctx, key); !found {
					t.Errorf("read-after-write miss for %s", key)
					return
				}
				e.Search(ctx, fmt.Sprintf("w%d:*", w))
			}
		}(w)
	}
	wg.Wait()

	if n := e.KeyCount(); n != 800 {
		t.Fatalf("expected 800 keys, got %d", n)
	}
	if s := e.Stats(ctx); s.Hits != 800 {
		t.Fatalf("expected 800 hits, got %d", s.Hits)
	}
}

func TestEngine_ObserverResults(t *testing.T) {
	obs := &recordingObserver{}
	e, _ := newTestEngine(t, Config{Observer: obs})
	ctx := context.Background()

	e.Set(ctx, "k", TextValue("v"))
	e.Delete(ctx, "missing")
	e.Clear(ctx, false)

	if got := obs.command(OpSet, "ok"); got != 1 {
		t.Fatalf("expected 1 ok set, got %d", got)
	}
	if got := obs.command(OpDelete, "not_found"); got != 1 {
		t.Fatalf("expected 1 not_found delete, got %d", got)
	}
	if got := obs.command(OpClear, "precondition_failed"); got != 1 {
		t.Fatalf("expected 1 precondition_failed clear, got %d", got)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	commands map[string]int
	reads    [2]int
	expiries map[string]int
}

func (o *recordingObserver) ObserveCommand(op, result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.commands == nil {
		o.commands = make(map[string]int)
	}
	o.commands[op+"/"+result]++
}

func (o *recordingObserver) ObserveRead(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.reads[0]++
	} else {
		o.reads[1]++
	}
}

func (o *recordingObserver) ObserveExpired(mechanism string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.expiries == nil {
		o.expiries = make(map[string]int)
	}
	o.expiries[mechanism] += n
}

func (o *recordingObserver) command(op, result string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.commands[op+"/"+result]
}

func (o *recordingObserver) expired(mechanism string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.expiries[mechanism]
}
