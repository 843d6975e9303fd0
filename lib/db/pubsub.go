package db

import (
	"sync"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// SubscriptionBuffer is the per-subscriber message buffer. A subscriber
// that falls behind by more than this many messages loses the overflow;
// lag is reported through Subscription.Dropped.
const SubscriptionBuffer = 64

var metricPublished = metrics.GetOrCreateCounter(`cedar_published_messages_total`)

// Message is one pub/sub delivery, tagged with its channel name
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is one receiver registered against a channel's broadcast
// bus. Receive from C; a closed C means the subscription was cancelled.
type Subscription struct {
	channel string
	ch      chan []byte
	dropped atomic.Uint64
}

// Channel returns the channel name this subscription listens on
func (s *Subscription) Channel() string {
	return s.channel
}

// C is the stream of published payloads
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// Dropped returns the number of messages lost to back-pressure since the
// last call, resetting the counter. Lag is non-fatal; delivery resumes with
// the next message that fits the buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Swap(0)
}

// bus is the per-channel broadcast fan-out. Its lock is held only for the
// brief, non-blocking send loop; slow subscribers never block publishers.
type bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Subscribe registers a receiver on channel, creating the broadcast bus if
// absent.
func (d *Database) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		channel: channel,
		ch:      make(chan []byte, SubscriptionBuffer),
	}
	d.channels.Compute(channel, func(b *bus, loaded bool) (*bus, bool) {
		if !loaded {
			b = &bus{subs: make(map[*Subscription]struct{})}
		}
		b.mu.Lock()
		b.subs[sub] = struct{}{}
		b.mu.Unlock()
		return b, false
	})
	return sub
}

// Unsubscribe cancels sub, closing its stream. The channel's bus is
// discarded when its last subscriber leaves.
func (d *Database) Unsubscribe(sub *Subscription) {
	d.channels.Compute(sub.channel, func(b *bus, loaded bool) (*bus, bool) {
		if !loaded {
			return nil, true
		}
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		empty := len(b.subs) == 0
		b.mu.Unlock()
		return b, empty
	})
}

// Publish broadcasts payload to every subscriber of channel and returns the
// number of receivers registered at publish time. A missing bus is not an
// error; the count is then zero. Subscribers whose buffer is full lose this
// message and have their lag counter bumped.
func (d *Database) Publish(channel string, payload []byte) int {
	b, ok := d.channels.Load(channel)
	if !ok {
		return 0
	}

	b.mu.Lock()
	n := 0
	for sub := range b.subs {
		select {
		case sub.ch <- payload:
		default:
			sub.dropped.Add(1)
		}
		n++
	}
	b.mu.Unlock()

	if n > 0 {
		metricPublished.Inc()
	}
	return n
}
