package cache

import (
	"container/heap"
	"time"
)

// expiryRecord associates a key with its absolute expiration time. index is
// the record's position in the heap and is maintained by expiryHeap.
type expiryRecord struct {
	key   string
	at    time.Time
	index int
}

// expiryHeap is a min-heap ordered by expiration time.
type expiryHeap []*expiryRecord

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	rec := x.(*expiryRecord)
	rec.index = len(*h)
	*h = append(*h, rec)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	old[n-1] = nil
	rec.index = -1
	*h = old[:n-1]
	return rec
}

// expiryIndex tracks the keys that carry an expiration time. A key has a
// record here exactly when its entry has a non-zero expiration. It is not
// safe for concurrent use; the engine lock guards it.
type expiryIndex struct {
	heap  expiryHeap
	byKey map[string]*expiryRecord
}

func newExpiryIndex() *expiryIndex {
	return &expiryIndex{byKey: make(map[string]*expiryRecord)}
}

// set records or moves key's expiration. A zero time clears it.
func (x *expiryIndex) set(key string, at time.Time) {
	if at.IsZero() {
		x.remove(key)
		return
	}
	if rec, ok := x.byKey[key]; ok {
		rec.at = at
		heap.Fix(&x.heap, rec.index)
		return
	}
	rec := &expiryRecord{key: key, at: at}
	heap.Push(&x.heap, rec)
	x.byKey[key] = rec
}

func (x *expiryIndex) remove(key string) {
	rec, ok := x.byKey[key]
	if !ok {
		return
	}
	heap.Remove(&x.heap, rec.index)
	delete(x.byKey, key)
}

func (x *expiryIndex) expiresAt(key string) (time.Time, bool) {
	rec, ok := x.byKey[key]
	if !ok {
		return time.Time{}, false
	}
	return rec.at, true
}

// isExpired reports whether key has an expiration at or before now.
func (x *expiryIndex) isExpired(key string, now time.Time) bool {
	rec, ok := x.byKey[key]
	return ok && !now.Before(rec.at)
}

// popDue removes and returns up to limit keys whose expiration is at or
// before now, earliest first. limit <= 0 means no limit.
func (x *expiryIndex) popDue(now time.Time, limit int) []string {
	var keys []string
	for len(x.heap) > 0 && !now.Before(x.heap[0].at) {
		if limit > 0 && len(keys) >= limit {
			break
		}
		rec := heap.Pop(&x.heap).(*expiryRecord)
		delete(x.byKey, rec.key)
		keys = append(keys, rec.key)
	}
	return keys
}

// countDue counts records expiring at or before now. Only the subtrees whose
// root is due are visited, so the cost is proportional to the result.
func (x *expiryIndex) countDue(now time.Time) int {
	n := 0
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if i >= len(x.heap) || now.Before(x.heap[i].at) {
			continue
		}
		n++
		stack = append(stack, 2*i+1, 2*i+2)
	}
	return n
}

func (x *expiryIndex) len() int { return len(x.heap) }

func (x *expiryIndex) reset() {
	x.heap = nil
	x.byKey = make(map[string]*expiryRecord)
}
