package db

import (
	"time"
)

// reap is the background expiry task. It removes entries in deadline order:
// whenever the earliest row is due it is dropped together with its entry,
// otherwise the reaper sleeps until that instant, until a SET schedules an
// earlier deadline, or until shutdown.
func (d *Database) reap() {
	for {
		next, ok := d.reapDue()

		if !ok {
			// no scheduled expirations, wait for work
			select {
			case <-d.wake:
			case <-d.done:
				return
			}
			continue
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-d.wake:
			timer.Stop()
		case <-d.done:
			timer.Stop()
			return
		}
	}
}

// reapDue removes every entry whose deadline has passed and returns the
// next scheduled instant, if any. Holding the lock here never blocks on IO.
func (d *Database) reapDue() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UnixNano()
	for {
		head, ok := d.expiry.Peek()
		if !ok {
			return time.Time{}, false
		}
		if head.Deadline > now {
			return time.Unix(0, head.Deadline), true
		}

		if _, ok := d.entries[head.Key]; !ok {
			// an expiry row without its entry breaks the index invariant
			panic("db: expiry row without matching entry for key " + head.Key)
		}
		delete(d.entries, head.Key)
		d.expiry.RemoveByKey(head.Key)
		metricExpiredKeys.Inc()
	}
}
