package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cedarkv/cedar/lib/db"
	"github.com/cedarkv/cedar/lib/resp"
)

// Command is one decoded client request. Apply executes it against the
// database and writes exactly one reply frame. Subscribe is the exception:
// the handler intercepts it to run the subscriber-mode state machine.
type Command interface {
	Name() string
	Apply(d *db.Database, conn *resp.Connection, shutdown *Shutdown) error
}

// FromFrame builds a command from a decoded request frame. The verb is the
// lowercased first array element; argument errors are command parse errors
// that the dispatcher reports as an Error frame without closing the
// connection.
func FromFrame(f resp.Frame) (Command, error) {
	p, err := resp.NewParse(f)
	if err != nil {
		return nil, err
	}

	verb, err := p.NextString()
	if err != nil {
		return nil, fmt.Errorf("missing command verb: %w", err)
	}

	switch strings.ToLower(verb) {
	case "ping":
		return parsePing(p)
	case "get":
		return parseGet(p)
	case "set":
		return parseSet(p)
	case "del":
		return parseDel(p)
	case "publish":
		return parsePublish(p)
	case "subscribe":
		return parseSubscribe(p)
	case "unsubscribe":
		return parseUnsubscribe(p)
	case "save":
		return parseSave(p)
	default:
		return &Unknown{Verb: verb}, nil
	}
}

// --------------------------------------------------------------------------
// PING
// --------------------------------------------------------------------------

// Ping carries an optional message to echo
type Ping struct {
	Msg []byte
}

func parsePing(p *resp.Parse) (*Ping, error) {
	msg, err := p.NextBytes()
	if errors.Is(err, resp.ErrEndOfArgs) {
		return &Ping{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := p.Finish(); err != nil {
		return nil, err
	}
	return &Ping{Msg: msg}, nil
}

func (c *Ping) Name() string { return "ping" }

func (c *Ping) Apply(_ *db.Database, conn *resp.Connection, _ *Shutdown) error {
	if c.Msg == nil {
		return conn.WriteFrame(resp.Simple("PONG"))
	}
	return conn.WriteFrame(resp.Bulk(c.Msg))
}

// --------------------------------------------------------------------------
// GET
// --------------------------------------------------------------------------

// Get reads one key
type Get struct {
	Key string
}

func parseGet(p *resp.Parse) (*Get, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	if err := p.Finish(); err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return &Get{Key: key}, nil
}

func (c *Get) Name() string { return "get" }

func (c *Get) Apply(d *db.Database, conn *resp.Connection, _ *Shutdown) error {
	value, ok := d.Get(c.Key)
	if !ok {
		return conn.WriteFrame(resp.Null{})
	}
	return conn.WriteFrame(resp.Bulk(value))
}

// --------------------------------------------------------------------------
// SET
// --------------------------------------------------------------------------

// Set overwrites one key, optionally scheduling expiration
type Set struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

func parseSet(p *resp.Parse) (*Set, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	value, err := p.NextBytes()
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}

	cmd := &Set{Key: key, Value: value}

	unit, err := p.NextString()
	if errors.Is(err, resp.ErrEndOfArgs) {
		return cmd, nil
	}
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}

	n, err := p.NextInt()
	if err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	if n == 0 {
		return nil, errors.New("set: expiry must be positive")
	}

	switch strings.ToLower(unit) {
	case "px":
		cmd.TTL = time.Duration(n) * time.Millisecond
	case "ex":
		cmd.TTL = time.Duration(n) * time.Second
	default:
		return nil, fmt.Errorf("set: unknown option %q", unit)
	}

	if err := p.Finish(); err != nil {
		return nil, fmt.Errorf("set: %w", err)
	}
	return cmd, nil
}

func (c *Set) Name() string { return "set" }

func (c *Set) Apply(d *db.Database, conn *resp.Connection, _ *Shutdown) error {
	d.Set(c.Key, c.Value, c.TTL)
	return conn.WriteFrame(resp.Simple("OK"))
}

// --------------------------------------------------------------------------
// DEL
// --------------------------------------------------------------------------

// Del removes one key
type Del struct {
	Key string
}

func parseDel(p *resp.Parse) (*Del, error) {
	key, err := p.NextString()
	if err != nil {
		return nil, fmt.Errorf("del: %w", err)
	}
	if err := p.Finish(); err != nil {
		return nil, fmt.Errorf("del: %w", err)
	}
	return &Del{Key: key}, nil
}

func (c *Del) Name() string { return "del" }

func (c *Del) Apply(d *db.Database, conn *resp.Connection, _ *Shutdown) error {
	if d.Del(c.Key) {
		return conn.WriteFrame(resp.Integer(1))
	}
	return conn.WriteFrame(resp.Integer(0))
}

// --------------------------------------------------------------------------
// PUBLISH
// --------------------------------------------------------------------------

// Publish broadcasts a message to a channel's subscribers
type Publish struct {
	Channel string
	Payload []byte
}

func parsePublish(p *resp.Parse) (*Publish, error) {
	channel, err := p.NextString()
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	payload, err := p.NextBytes()
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	if err := p.Finish(); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	return &Publish{Channel: channel, Payload: payload}, nil
}

func (c *Publish) Name() string { return "publish" }

func (c *Publish) Apply(d *db.Database, conn *resp.Connection, _ *Shutdown) error {
	n := d.Publish(c.Channel, c.Payload)
	return conn.WriteFrame(resp.Integer(uint64(n)))
}

// --------------------------------------------------------------------------
// SUBSCRIBE / UNSUBSCRIBE
// --------------------------------------------------------------------------

// Subscribe enters subscriber mode on one or more channels. The handler
// intercepts it; Apply is never called directly.
type Subscribe struct {
	Channels []string
}

func parseSubscribe(p *resp.Parse) (*Subscribe, error) {
	channels := []string{}
	for {
		channel, err := p.NextString()
		if errors.Is(err, resp.ErrEndOfArgs) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("subscribe: %w", err)
		}
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		return nil, errors.New("subscribe: at least one channel required")
	}
	return &Subscribe{Channels: channels}, nil
}

func (c *Subscribe) Name() string { return "subscribe" }

func (c *Subscribe) Apply(_ *db.Database, conn *resp.Connection, _ *Shutdown) error {
	// dispatched by the handler's subscriber machine instead
	return conn.WriteFrame(resp.Error("ERR subscribe handled out of band"))
}

// Unsubscribe removes channel subscriptions; with no channels it removes
// all of them. Outside subscriber mode it is an error.
type Unsubscribe struct {
	Channels []string
}

func parseUnsubscribe(p *resp.Parse) (*Unsubscribe, error) {
	channels := []string{}
	for {
		channel, err := p.NextString()
		if errors.Is(err, resp.ErrEndOfArgs) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unsubscribe: %w", err)
		}
		channels = append(channels, channel)
	}
	return &Unsubscribe{Channels: channels}, nil
}

func (c *Unsubscribe) Name() string { return "unsubscribe" }

func (c *Unsubscribe) Apply(_ *db.Database, conn *resp.Connection, _ *Shutdown) error {
	return conn.WriteFrame(resp.Error("ERR UNSUBSCRIBE without an active subscription"))
}

// --------------------------------------------------------------------------
// SAVE
// --------------------------------------------------------------------------

// Save snapshots the database synchronously
type Save struct{}

func parseSave(p *resp.Parse) (*Save, error) {
	if err := p.Finish(); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	return &Save{}, nil
}

func (c *Save) Name() string { return "save" }

func (c *Save) Apply(d *db.Database, conn *resp.Connection, _ *Shutdown) error {
	if err := d.Save(); err != nil {
		Logger.Errorf("SAVE failed: %v", err)
		return conn.WriteFrame(resp.Error(fmt.Sprintf("ERR save failed: %v", err)))
	}
	return conn.WriteFrame(resp.Simple("OK"))
}

// --------------------------------------------------------------------------
// UNKNOWN
// --------------------------------------------------------------------------

// Unknown replies with an error for unrecognized verbs
type Unknown struct {
	Verb string
}

func (c *Unknown) Name() string { return "unknown" }

func (c *Unknown) Apply(_ *db.Database, conn *resp.Connection, _ *Shutdown) error {
	return conn.WriteFrame(resp.Error(fmt.Sprintf("ERR unknown command '%s'", c.Verb)))
}
