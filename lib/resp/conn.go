package resp

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("resp")

const readChunkSize = 4 * 1024

// Connection wraps a network connection with frame-level read and write
// operations. Reads accumulate into a growable buffer until one complete
// frame can be decoded; writes go through a buffered writer and are flushed
// per frame. A Connection is not safe for concurrent readers or concurrent
// writers, but one reader and one writer may run in parallel.
type Connection struct {
	conn net.Conn
	buf  []byte
	wr   *bufio.Writer
}

// NewConnection wraps conn for frame IO
func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn: conn,
		wr:   bufio.NewWriter(conn),
	}
}

// ReadFrame reads one complete frame from the connection. It returns
// (nil, nil) when the peer closed the connection at a frame boundary, and
// an error for protocol violations, mid-frame disconnects or IO failures.
func (c *Connection) ReadFrame() (Frame, error) {
	chunk := make([]byte, readChunkSize)
	for {
		if len(c.buf) > 0 {
			f, n, err := ReadFrame(c.buf)
			if err == nil {
				c.buf = c.buf[n:]
				return f, nil
			}
			if !errors.Is(err, ErrIncomplete) {
				Logger.Debugf("decode error from %s: %v", c.RemoteAddr(), err)
				return nil, err
			}
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			// decode before acting on any error delivered with the data
			c.buf = append(c.buf, chunk[:n]...)
			continue
		}
		if err == nil {
			continue
		}
		if err == io.EOF {
			if len(c.buf) == 0 {
				return nil, nil
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

// WriteFrame serializes one frame and flushes it to the peer
func (c *Connection) WriteFrame(f Frame) error {
	if err := WriteFrame(c.wr, f); err != nil {
		return err
	}
	return c.wr.Flush()
}

// RemoteAddr returns the peer address
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection. A blocked ReadFrame returns with
// an error.
func (c *Connection) Close() error {
	return c.conn.Close()
}
