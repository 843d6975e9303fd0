package server

import (
	"errors"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/resp"
)

var metricCommands = metrics.GetOrCreateCounter(`cedar_commands_total`)

// payload is one read-pump delivery: a decoded frame or the terminal error.
// A nil frame with a nil error means the peer closed cleanly.
type payload struct {
	frame resp.Frame
	err   error
}

// handler serves one connection. It reads a request frame, dispatches the
// command, writes the reply, and flushes — one request in flight at a time.
// SUBSCRIBE switches it into the subscriber-mode sub-state-machine.
type handler struct {
	db       *db.Database
	conn     *resp.Connection
	shutdown *Shutdown

	// frames carries decoded request frames from the read pump so the
	// main loop can select over socket input, subscriptions and shutdown
	frames chan payload
	// done stops the read pump when the handler returns first
	done chan struct{}
}

func newHandler(database *db.Database, conn *resp.Connection, shutdown *Shutdown) *handler {
	return &handler{
		db:       database,
		conn:     conn,
		shutdown: shutdown,
		frames:   make(chan payload),
		done:     make(chan struct{}),
	}
}

// readPump moves decoded frames from the socket into the frames channel.
// It exits on the first read error, on clean EOF, or once the handler is
// gone.
func (h *handler) readPump() {
	for {
		f, err := h.conn.ReadFrame()
		select {
		case h.frames <- payload{frame: f, err: err}:
		case <-h.done:
			return
		}
		if err != nil || f == nil {
			return
		}
	}
}

// run drives the connection until the peer closes, a fatal error occurs, or
// shutdown is requested
func (h *handler) run() error {
	go h.readPump()
	defer close(h.done)

	for {
		select {
		case <-h.shutdown.Done():
			return nil

		case pl := <-h.frames:
			closed, err := h.dispatch(pl)
			if closed || err != nil {
				return err
			}
		}
	}
}

// dispatch handles one read-pump delivery in normal mode. The returned bool
// reports that the connection is finished.
func (h *handler) dispatch(pl payload) (bool, error) {
	if pl.err != nil {
		return true, h.fail(pl.err)
	}
	if pl.frame == nil {
		// peer closed at a frame boundary
		return true, nil
	}

	cmd, err := FromFrame(pl.frame)
	if err != nil {
		// malformed arguments get an error reply, the connection lives on
		if werr := h.conn.WriteFrame(resp.Error("ERR " + err.Error())); werr != nil {
			return true, werr
		}
		return false, nil
	}

	metricCommands.Inc()

	if sub, ok := cmd.(*Subscribe); ok {
		// subscriber mode runs until the subscription set drains or the
		// connection is finished
		return h.serveSubscriber(sub.Channels)
	}

	if err := cmd.Apply(h.db, h.conn, h.shutdown); err != nil {
		return true, err
	}
	return false, nil
}

// fail reports a terminal read error. Protocol violations get a best-effort
// final Error frame before the connection is torn down.
func (h *handler) fail(err error) error {
	var perr *resp.ProtocolError
	if errors.As(err, &perr) {
		_ = h.conn.WriteFrame(resp.Error(fmt.Sprintf("ERR %v", perr)))
		return err
	}
	return err
}
