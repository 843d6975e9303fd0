// Package db implements the shared in-memory database: the key space with
// per-key expirations, the publish/subscribe channel registry, snapshot
// persistence and the background expiry reaper.
package db

import (
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cedarkv/cedar/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("db")

var (
	metricExpiredKeys = metrics.GetOrCreateCounter(`cedar_expired_keys_total`)
	metricSnapshots   = metrics.GetOrCreateCounter(`cedar_snapshots_total`)
)

// Entry is one stored value. A zero ExpiresAt means the entry never
// expires.
type Entry struct {
	Data      []byte
	ExpiresAt time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Database is the shared state reachable from every connection: the entry
// map, the expiry index, and the channel registry. A single mutex protects
// entries and the expiry index; the channel registry has its own
// synchronization. The listener constructs one Database and hands the same
// handle to every connection handler and to the expiry reaper.
//
// Invariant: an entry has a non-zero ExpiresAt iff the expiry heap holds a
// row for its key.
type Database struct {
	mu      sync.Mutex
	entries map[string]Entry
	expiry  *util.KeyHeap

	// wake nudges the reaper when a SET schedules a deadline earlier
	// than the one it sleeps toward
	wake chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	channels *xsync.MapOf[string, *bus]

	dumpPath string
}

// New creates an empty database and starts its expiry reaper. dumpPath is
// the default snapshot target used by Save and by snapshot load on boot.
func New(dumpPath string) *Database {
	d := &Database{
		entries:  make(map[string]Entry),
		expiry:   util.NewKeyHeap(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		channels: xsync.NewMapOf[string, *bus](),
		dumpPath: dumpPath,
	}
	go d.reap()
	return d
}

// DumpPath returns the default snapshot target
func (d *Database) DumpPath() string {
	return d.dumpPath
}

// Get returns the value for key if present and not expired at the read
// instant. An expired entry is removed on access. The returned slice is a
// copy and safe to retain.
func (d *Database) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok && e.expired(time.Now()) {
		delete(d.entries, key)
		d.expiry.RemoveByKey(key)
		metricExpiredKeys.Inc()
		ok = false
	}
	var out []byte
	if ok {
		out = make([]byte, len(e.Data))
		copy(out, e.Data)
	}
	d.mu.Unlock()
	return out, ok
}

// Set stores value under key, replacing any prior entry and its expiry row.
// A positive ttl schedules expiration ttl from now; zero means no
// expiration. If the new deadline precedes the
// earliest scheduled one the reaper is nudged awake.
func (d *Database) Set(key string, value []byte, ttl time.Duration) {
	// Copy so later caller-side mutation cannot corrupt the store
	data := make([]byte, len(value))
	copy(data, value)

	var expiresAt time.Time
	notify := false

	d.mu.Lock()
	if prev, ok := d.entries[key]; ok && !prev.ExpiresAt.IsZero() {
		d.expiry.RemoveByKey(key)
	}
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
		if head, ok := d.expiry.Peek(); !ok || expiresAt.UnixNano() < head.Deadline {
			notify = true
		}
		d.expiry.AddItem(key, expiresAt.UnixNano())
	}
	d.entries[key] = Entry{Data: data, ExpiresAt: expiresAt}
	d.mu.Unlock()

	if notify {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// Del removes key, reporting whether an entry existed. Any expiry row is
// removed with it.
func (d *Database) Del(key string) bool {
	d.mu.Lock()
	_, ok := d.entries[key]
	if ok {
		delete(d.entries, key)
		d.expiry.RemoveByKey(key)
	}
	d.mu.Unlock()
	return ok
}

// Close stops the expiry reaper. Entries remain readable; a final Save is
// the listener's responsibility.
func (d *Database) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
}
