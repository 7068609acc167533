// Package websocket implements the protocol upgrade path: the opening
// handshake, the frame codec, and the long-lived message loop that
// owns the socket after the 101 response is flushed.
package websocket

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sync"
)

// DefaultMaxMessageSize bounds a single reassembled message.
const DefaultMaxMessageSize = 1 << 20 // 1MB

// Message is one discrete payload exchanged on an upgraded
// connection: text, binary, ping, pong, or close.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Conn is an upgraded connection. It owns the underlying socket;
// the request/response state machine never touches it again.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	maxMessageSize int64

	closeMu   sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// newConn wraps an accepted socket. leftover holds any bytes the
// handshake read past the request header; they are replayed before
// fresh socket reads.
func newConn(raw net.Conn, leftover []byte) *Conn {
	var r io.Reader = raw
	if len(leftover) > 0 {
		buffered := make([]byte, len(leftover))
		copy(buffered, leftover)
		r = io.MultiReader(newByteReader(buffered), raw)
	}
	return &Conn{
		raw:            raw,
		reader:         bufio.NewReader(r),
		maxMessageSize: DefaultMaxMessageSize,
	}
}

type byteReader struct{ buf []byte }

func newByteReader(buf []byte) *byteReader { return &byteReader{buf: buf} }

func (b *byteReader) Read(p []byte) (int, error) {
	if len(b.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

// SetMaxMessageSize overrides the reassembled-message bound.
func (c *Conn) SetMaxMessageSize(size int64) {
	c.maxMessageSize = size
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// ReadMessage blocks until one complete message arrives. Fragmented
// messages are reassembled, pings are answered with pongs inline, and
// a close frame (or peer disconnect) surfaces as io.EOF.
func (c *Conn) ReadMessage() (*Message, error) {
	if c.IsClosed() {
		return nil, io.EOF
	}

	var (
		opcode    Opcode
		fragments [][]byte
		total     int64
	)

	for {
		f, err := readFrame(c.reader, c.maxMessageSize)
		if err != nil {
			return nil, err
		}

		switch f.opcode {
		case OpText, OpBinary:
			if f.fin {
				return &Message{Opcode: f.opcode, Payload: f.payload}, nil
			}
			opcode = f.opcode
			fragments = append(fragments, f.payload)
			total += int64(len(f.payload))

		case OpContinuation:
			fragments = append(fragments, f.payload)
			total += int64(len(f.payload))
			if total > c.maxMessageSize {
				return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, total, c.maxMessageSize)
			}
			if f.fin {
				payload := make([]byte, 0, total)
				for _, frag := range fragments {
					payload = append(payload, frag...)
				}
				return &Message{Opcode: opcode, Payload: payload}, nil
			}

		case OpPing:
			if err := c.write(&frame{fin: true, opcode: OpPong, payload: f.payload}); err != nil {
				return nil, err
			}

		case OpPong:
			// Unsolicited pongs are ignored.

		case OpClose:
			c.Close()
			return nil, io.EOF

		default:
			return nil, fmt.Errorf("websocket: unknown opcode 0x%x", byte(f.opcode))
		}
	}
}

// WriteMessage sends a single unfragmented message.
func (c *Conn) WriteMessage(opcode Opcode, payload []byte) error {
	if c.IsClosed() {
		return io.EOF
	}
	return c.write(&frame{fin: true, opcode: opcode, payload: payload})
}

// WriteText sends a text message.
func (c *Conn) WriteText(text string) error {
	return c.WriteMessage(OpText, []byte(text))
}

// WriteBinary sends a binary message.
func (c *Conn) WriteBinary(data []byte) error {
	return c.WriteMessage(OpBinary, data)
}

// Ping sends a ping frame.
func (c *Conn) Ping() error {
	return c.WriteMessage(OpPing, nil)
}

func (c *Conn) write(f *frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.raw, f)
}

// Close sends a close frame on a best-effort basis and closes the
// socket. Safe to call from either side of the loop, once or many
// times.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()

		c.write(&frame{fin: true, opcode: OpClose})
		err = c.raw.Close()
	})
	return err
}

// IsClosed reports whether Close has run.
func (c *Conn) IsClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
