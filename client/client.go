// Package client provides the typed client library used by the command
// line surface and the tests: request/response methods over one connection
// plus a Subscriber for the streaming subscriber mode.
package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cedarkv/cedar/lib/resp"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("client")

// ErrConnReset is returned when the server closed the connection while a
// response was pending.
var ErrConnReset = errors.New("connection reset by server")

// Client is a single-connection RESP client. One request is in flight at a
// time; it is not safe for concurrent use (use a Pool for that).
type Client struct {
	conn *resp.Connection
}

// Connect dials a cedar server
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return &Client{conn: resp.NewConnection(conn)}, nil
}

// Close releases the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// request writes one command frame and reads the reply. Error frames
// surface as errors.
func (c *Client) request(f resp.Frame) (resp.Frame, error) {
	if err := c.conn.WriteFrame(f); err != nil {
		return nil, err
	}
	return c.readResponse()
}

func (c *Client) readResponse() (resp.Frame, error) {
	f, err := c.conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrConnReset
	}
	if e, ok := f.(resp.Error); ok {
		return nil, errors.New(string(e))
	}
	return f, nil
}

// Ping checks the connection. With a nil message the server answers PONG;
// otherwise the message is echoed.
func (c *Client) Ping(msg []byte) ([]byte, error) {
	req := resp.Array{resp.Bulk("ping")}
	if msg != nil {
		req = append(req, resp.Bulk(msg))
	}
	f, err := c.request(req)
	if err != nil {
		return nil, err
	}
	switch fr := f.(type) {
	case resp.Simple:
		return []byte(fr), nil
	case resp.Bulk:
		return fr, nil
	default:
		return nil, fmt.Errorf("unexpected ping reply %T", f)
	}
}

// Get fetches the value of key. The bool reports whether the key existed.
func (c *Client) Get(key string) ([]byte, bool, error) {
	f, err := c.request(resp.Array{resp.Bulk("get"), resp.Bulk(key)})
	if err != nil {
		return nil, false, err
	}
	switch fr := f.(type) {
	case resp.Null:
		return nil, false, nil
	case resp.Bulk:
		return fr, true, nil
	case resp.Simple:
		return []byte(fr), true, nil
	default:
		return nil, false, fmt.Errorf("unexpected get reply %T", f)
	}
}

// Set stores value under key without expiration
func (c *Client) Set(key string, value []byte) error {
	return c.set(resp.Array{resp.Bulk("set"), resp.Bulk(key), resp.Bulk(value)})
}

// SetWithTTL stores value under key, expiring after ttl. ttl must be at
// least one millisecond.
func (c *Client) SetWithTTL(key string, value []byte, ttl time.Duration) error {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		return errors.New("ttl must be at least one millisecond")
	}
	return c.set(resp.Array{
		resp.Bulk("set"), resp.Bulk(key), resp.Bulk(value),
		resp.Bulk("px"), resp.Bulk(strconv.FormatInt(ms, 10)),
	})
}

func (c *Client) set(req resp.Array) error {
	f, err := c.request(req)
	if err != nil {
		return err
	}
	if s, ok := f.(resp.Simple); !ok || string(s) != "OK" {
		return fmt.Errorf("unexpected set reply %v", f)
	}
	return nil
}

// Del removes key, reporting whether it existed
func (c *Client) Del(key string) (bool, error) {
	f, err := c.request(resp.Array{resp.Bulk("del"), resp.Bulk(key)})
	if err != nil {
		return false, err
	}
	n, ok := f.(resp.Integer)
	if !ok {
		return false, fmt.Errorf("unexpected del reply %T", f)
	}
	return n == 1, nil
}

// Publish broadcasts payload on channel and returns the number of
// subscribers that were registered at publish time
func (c *Client) Publish(channel string, payload []byte) (uint64, error) {
	f, err := c.request(resp.Array{resp.Bulk("publish"), resp.Bulk(channel), resp.Bulk(payload)})
	if err != nil {
		return 0, err
	}
	n, ok := f.(resp.Integer)
	if !ok {
		return 0, fmt.Errorf("unexpected publish reply %T", f)
	}
	return uint64(n), nil
}

// Save asks the server for a synchronous snapshot
func (c *Client) Save() error {
	f, err := c.request(resp.Array{resp.Bulk("save")})
	if err != nil {
		return err
	}
	if s, ok := f.(resp.Simple); !ok || string(s) != "OK" {
		return fmt.Errorf("unexpected save reply %v", f)
	}
	return nil
}

// --------------------------------------------------------------------------
// Subscriber
// --------------------------------------------------------------------------

// Message is one pub/sub delivery received by a Subscriber
type Message struct {
	Channel string
	Payload []byte
}

// Subscriber is a client switched into subscriber mode. The underlying
// connection only accepts Subscribe and Unsubscribe until every
// subscription is removed.
type Subscriber struct {
	client   *Client
	channels map[string]struct{}
}

// Subscribe switches the client into subscriber mode on the given
// channels. The client connection is owned by the subscriber afterwards.
func (c *Client) Subscribe(channels ...string) (*Subscriber, error) {
	if len(channels) == 0 {
		return nil, errors.New("subscribe requires at least one channel")
	}
	s := &Subscriber{client: c, channels: make(map[string]struct{})}
	if err := s.Subscribe(channels...); err != nil {
		return nil, err
	}
	return s, nil
}

// Subscribe adds channels to the subscription set
func (s *Subscriber) Subscribe(channels ...string) error {
	req := resp.Array{resp.Bulk("subscribe")}
	for _, channel := range channels {
		req = append(req, resp.Bulk(channel))
	}
	if err := s.client.conn.WriteFrame(req); err != nil {
		return err
	}
	for range channels {
		channel, err := s.readConfirmation("subscribe")
		if err != nil {
			return err
		}
		s.channels[channel] = struct{}{}
	}
	return nil
}

// Unsubscribe removes channels from the subscription set; with no
// arguments it removes all of them
func (s *Subscriber) Unsubscribe(channels ...string) error {
	req := resp.Array{resp.Bulk("unsubscribe")}
	for _, channel := range channels {
		req = append(req, resp.Bulk(channel))
	}
	if err := s.client.conn.WriteFrame(req); err != nil {
		return err
	}
	expect := len(channels)
	if expect == 0 {
		expect = len(s.channels)
	}
	for i := 0; i < expect; i++ {
		channel, err := s.readConfirmation("unsubscribe")
		if err != nil {
			return err
		}
		delete(s.channels, channel)
	}
	return nil
}

// Channels returns the currently subscribed channel names
func (s *Subscriber) Channels() []string {
	out := make([]string, 0, len(s.channels))
	for channel := range s.channels {
		out = append(out, channel)
	}
	return out
}

// NextMessage blocks until the next published message arrives
func (s *Subscriber) NextMessage() (Message, error) {
	for {
		kind, fields, err := s.readPush()
		if err != nil {
			return Message{}, err
		}
		if kind != "message" {
			// stray confirmation from an interleaved subscribe; keep the
			// local set in sync and wait for the next delivery
			s.applyConfirmation(kind, fields[0])
			continue
		}
		return Message{Channel: fields[0], Payload: []byte(fields[1])}, nil
	}
}

// readConfirmation waits for a subscribe/unsubscribe confirmation of the
// given kind. Messages arriving while a confirmation is pending are
// dropped; the caller is mid-handshake and cannot consume them.
func (s *Subscriber) readConfirmation(want string) (string, error) {
	for {
		kind, fields, err := s.readPush()
		if err != nil {
			return "", err
		}
		if kind == want {
			return fields[0], nil
		}
		if kind == "message" {
			// a message raced the confirmation; drop it, the caller is
			// mid-handshake and cannot consume deliveries yet
			Logger.Debugf("dropping message on %q during subscription handshake", fields[0])
			continue
		}
		s.applyConfirmation(kind, fields[0])
	}
}

func (s *Subscriber) applyConfirmation(kind, channel string) {
	switch kind {
	case "subscribe":
		s.channels[channel] = struct{}{}
	case "unsubscribe":
		delete(s.channels, channel)
	}
}

// readPush reads one server push frame: a three element array whose first
// element names the push kind
func (s *Subscriber) readPush() (string, []string, error) {
	f, err := s.client.conn.ReadFrame()
	if err != nil {
		return "", nil, err
	}
	if f == nil {
		return "", nil, ErrConnReset
	}
	if e, ok := f.(resp.Error); ok {
		return "", nil, errors.New(string(e))
	}
	arr, ok := f.(resp.Array)
	if !ok || len(arr) != 3 {
		return "", nil, fmt.Errorf("unexpected push frame %v", f)
	}

	kind, ok := arr[0].(resp.Bulk)
	if !ok {
		return "", nil, fmt.Errorf("unexpected push kind %T", arr[0])
	}
	channel, ok := arr[1].(resp.Bulk)
	if !ok {
		return "", nil, fmt.Errorf("unexpected push channel %T", arr[1])
	}

	switch third := arr[2].(type) {
	case resp.Bulk:
		return string(kind), []string{string(channel), string(third)}, nil
	case resp.Integer:
		return string(kind), []string{string(channel), strconv.FormatUint(uint64(third), 10)}, nil
	default:
		return "", nil, fmt.Errorf("unexpected push payload %T", arr[2])
	}
}

// Close tears down the underlying connection
func (s *Subscriber) Close() error {
	return s.client.Close()
}
