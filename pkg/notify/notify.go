// Package notify implements the global notification surface described in
// spec §4.H: a bounded queue of recent failure/status notices, deduplicated
// per reason and expired by TTL.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/all-smi/all-smi/pkg/types"
)

const defaultTTL = 10 * time.Second

// maxEntries bounds how many notifications are held at once; setting one
// more evicts the least recently set entry.
const maxEntries = 32

// Queue is the process-wide notification surface. A reader calls Warning
// once per distinct failure reason per process lifetime; Status may be
// called repeatedly (e.g. "Initializing...").
type Queue struct {
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, types.Notification]
	shown  map[string]bool
	ttl    time.Duration
}

// New returns a Queue whose entries expire after ttl (defaultTTL if ttl<=0).
func New(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := ttlcache.New[string, types.Notification](
		ttlcache.WithTTL[string, types.Notification](ttl),
		ttlcache.WithCapacity[string, types.Notification](maxEntries),
	)

	return &Queue{cache: c, shown: make(map[string]bool), ttl: ttl}
}

// Warning publishes a one-shot warning for reason. Subsequent calls with the
// same reason are no-ops until the process restarts (P9).
func (q *Queue) Warning(reason, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shown[reason] {
		return
	}

	q.shown[reason] = true
	q.cache.Set(reason, types.Notification{Reason: reason, Message: message}, ttlcache.DefaultTTL)
}

// Status publishes a repeatable status notice (e.g. "Initializing..."). It is
// exempt from the per-reason dedup rule.
func (q *Queue) Status(reason, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cache.Set(reason, types.Notification{Reason: reason, Message: message, Status: true}, ttlcache.DefaultTTL)
}

// Update drops expired entries. Called once per collector tick.
func (q *Queue) Update() {
	q.cache.DeleteExpired()
}

// Entries returns the currently live notifications, most recently set last.
func (q *Queue) Entries() []types.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.cache.Items()
	live := make([]*ttlcache.Item[string, types.Notification], 0, len(items))

	for _, item := range items {
		live = append(live, item)
	}

	// Every entry is set with the same TTL, so expiry order is set order.
	sort.Slice(live, func(i, j int) bool { return live[i].ExpiresAt().Before(live[j].ExpiresAt()) })

	out := make([]types.Notification, 0, len(live))
	for _, item := range live {
		out = append(out, item.Value())
	}

	return out
}

// Shown reports whether a one-shot warning for reason has already fired.
// Exposed for readers that need to gate expensive follow-up work, not only
// the notification text itself.
func (q *Queue) Shown(reason string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.shown[reason]
}
