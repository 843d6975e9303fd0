package server

import (
	"sort"

	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/resp"
)

// serveSubscriber runs the subscriber-mode sub-state-machine. The handler
// multiplexes over messages from its subscriptions and inbound frames from
// the socket; only SUBSCRIBE and UNSUBSCRIBE are accepted while the mode is
// active. The returned bool reports that the connection is finished; a
// false return means the subscription set drained and the caller resumes
// normal mode.
func (h *handler) serveSubscriber(channels []string) (bool, error) {
	subs := make(map[string]*db.Subscription)
	msgs := make(chan db.Message)
	stop := make(chan struct{})
	defer close(stop)
	defer func() {
		for _, sub := range subs {
			h.db.Unsubscribe(sub)
		}
	}()

	add := func(channel string) error {
		if _, ok := subs[channel]; !ok {
			sub := h.db.Subscribe(channel)
			subs[channel] = sub
			go forwardMessages(sub, msgs, stop)
		}
		return h.conn.WriteFrame(resp.Array{
			resp.Bulk("subscribe"),
			resp.Bulk(channel),
			resp.Integer(uint64(len(subs))),
		})
	}

	remove := func(channel string) error {
		if sub, ok := subs[channel]; ok {
			h.db.Unsubscribe(sub)
			delete(subs, channel)
		}
		return h.conn.WriteFrame(resp.Array{
			resp.Bulk("unsubscribe"),
			resp.Bulk(channel),
			resp.Integer(uint64(len(subs))),
		})
	}

	for _, channel := range channels {
		if err := add(channel); err != nil {
			return true, err
		}
	}

	for len(subs) > 0 {
		select {
		case <-h.shutdown.Done():
			return true, nil

		case m := <-msgs:
			err := h.conn.WriteFrame(resp.Array{
				resp.Bulk("message"),
				resp.Bulk(m.Channel),
				resp.Bulk(m.Payload),
			})
			if err != nil {
				return true, err
			}

		case pl := <-h.frames:
			if pl.err != nil {
				return true, h.fail(pl.err)
			}
			if pl.frame == nil {
				return true, nil
			}

			cmd, err := FromFrame(pl.frame)
			if err != nil {
				if werr := h.conn.WriteFrame(resp.Error("ERR " + err.Error())); werr != nil {
					return true, werr
				}
				continue
			}

			switch c := cmd.(type) {
			case *Subscribe:
				for _, channel := range c.Channels {
					if err := add(channel); err != nil {
						return true, err
					}
				}

			case *Unsubscribe:
				targets := c.Channels
				if len(targets) == 0 {
					// no arguments means all current subscriptions
					targets = make([]string, 0, len(subs))
					for channel := range subs {
						targets = append(targets, channel)
					}
					sort.Strings(targets)
				}
				for _, channel := range targets {
					if err := remove(channel); err != nil {
						return true, err
					}
				}

			default:
				err := h.conn.WriteFrame(resp.Error(
					"ERR only SUBSCRIBE and UNSUBSCRIBE are allowed in subscriber mode"))
				if err != nil {
					return true, err
				}
			}
		}
	}

	return false, nil
}

// forwardMessages fans one subscription into the handler's message channel.
// It exits when the subscription is cancelled or the subscriber loop stops.
// Lag is logged and swallowed; the stream resumes with the next message.
func forwardMessages(sub *db.Subscription, msgs chan<- db.Message, stop <-chan struct{}) {
	for {
		pay, ok := <-sub.C()
		if !ok {
			return
		}
		if n := sub.Dropped(); n > 0 {
			Logger.Warningf("subscriber lagging on channel %q, dropped %d messages", sub.Channel(), n)
		}
		select {
		case msgs <- db.Message{Channel: sub.Channel(), Payload: pay}:
		case <-stop:
			return
		}
	}
}
