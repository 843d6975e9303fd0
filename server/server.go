// Package server implements the TCP listener, the per-connection request
// handler with its subscriber-mode sub-state-machine, the command set and
// the shutdown bus.
package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cedarkv/cedar/common"
	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/resp"
	"github.com/lni/dragonboat/v4/logger"

	_ "net/http/pprof"
)

var Logger = logger.GetLogger("server")

var metricConnections = metrics.GetOrCreateCounter(`cedar_connections_total`)

// Server owns the shared database handle, accepts sockets, and spawns one
// handler per connection. On shutdown it stops accepting, propagates the
// signal to every handler and the reaper, and persists a final snapshot.
type Server struct {
	config   common.ServerConfig
	db       *db.Database
	shutdown *Shutdown

	mu       sync.Mutex
	listener net.Listener

	handlers sync.WaitGroup
}

// New creates a server around an existing database handle
func New(config common.ServerConfig, database *db.Database) *Server {
	return &Server{
		config:   config,
		db:       database,
		shutdown: NewShutdown(),
	}
}

// Serve accepts connections on ln until shutdown, then waits for the
// handlers, stops the reaper and writes the final snapshot. Transient
// accept errors are retried with exponential backoff.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	Logger.Infof("serving on %s", ln.Addr())

	if s.config.SaveIntervalSec > 0 {
		go s.periodicSave(time.Duration(s.config.SaveIntervalSec) * time.Second)
	}
	if s.config.DebugAddr != "" {
		go s.serveDebug(s.config.DebugAddr)
	}

	backoff := time.Second
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.IsShutdown() {
				break
			}
			if backoff > 64*time.Second {
				s.shutdown.Trigger()
				s.finish()
				return err
			}
			Logger.Errorf("accept error (retrying in %s): %v", backoff, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		backoff = time.Second

		metricConnections.Inc()
		s.handlers.Add(1)
		go s.handleConn(conn)
	}

	s.finish()
	return nil
}

// handleConn runs one connection to completion. Handler failures are
// isolated: they are logged and the accept loop keeps serving.
func (s *Server) handleConn(conn net.Conn) {
	defer s.handlers.Done()

	c := resp.NewConnection(conn)
	defer c.Close()

	Logger.Debugf("accepted connection from %s", c.RemoteAddr())

	h := newHandler(s.db, c, s.shutdown)
	if err := h.run(); err != nil {
		Logger.Errorf("connection %s: %v", c.RemoteAddr(), err)
		return
	}
	Logger.Debugf("connection %s closed", c.RemoteAddr())
}

// finish drains the handlers and persists the final snapshot
func (s *Server) finish() {
	s.handlers.Wait()
	s.db.Close()

	if stats, err := s.db.Stats().JSON(); err == nil {
		Logger.Infof("final state: %s", stats)
	}

	if err := s.db.Save(); err != nil {
		Logger.Errorf("final snapshot failed: %v", err)
	}
}

// Shutdown triggers the shutdown bus and stops the accept loop. It returns
// immediately; Serve returns once the handlers have drained.
func (s *Server) Shutdown() {
	s.shutdown.Trigger()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
}

// periodicSave snapshots the database on a fixed interval until shutdown
func (s *Server) periodicSave(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.db.Save(); err != nil {
				Logger.Errorf("periodic snapshot failed: %v", err)
			}
		case <-s.shutdown.Done():
			return
		}
	}
}

// serveDebug exposes Prometheus metrics, database stats and pprof on a
// separate HTTP listener
func (s *Server) serveDebug(addr string) {
	http.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	http.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		out, err := s.db.Stats().JSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	})

	Logger.Infof("debug server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		Logger.Errorf("debug server: %v", err)
	}
}
