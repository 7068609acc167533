package core

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/ember-server/core/http"
	"github.com/searchktools/ember-server/core/middleware"
	"github.com/searchktools/ember-server/core/websocket"
)

// Connection states
type connState uint8

const (
	stateReadingHeaders connState = iota
	stateReadingBody
	stateDispatching
	stateWritingResponse
	stateIdle
	stateClosed
)

var headerTerminator = []byte("\r\n\r\n")

// conn drives one accepted socket through the request/response state
// machine until the peer closes, an error occurs, or the socket is
// handed to the upgrade path.
type conn struct {
	rwc    net.Conn
	engine *Engine
	log    *logrus.Entry

	// buf is the pooled read buffer. Its length is the number of
	// buffered bytes; between exchanges it holds whatever the last
	// read pulled past the previous request.
	buf   []byte
	state connState

	// detached is set once the socket belongs to an upgrade handler;
	// the normal cleanup must no longer touch it.
	detached bool
}

func (e *Engine) serveConn(rwc net.Conn) {
	c := &conn{
		rwc:    rwc,
		engine: e,
		log:    e.log.WithField("remote", rwc.RemoteAddr().String()),
		buf:    e.bufPool.Acquire(),
	}
	defer func() {
		c.state = stateClosed
		if !c.detached {
			e.bufPool.Release(c.buf)
			rwc.Close()
		}
	}()

	ctx := context.Background()

	for {
		c.state = stateReadingHeaders
		req, err := c.readRequest()
		if err != nil {
			if err != io.EOF {
				c.log.WithError(err).Debug("closing connection")
			}
			return
		}
		req.RemoteAddr = rwc.RemoteAddr()

		c.state = stateDispatching
		res := http.NewResponse(http.StatusOK, nil)

		stopped := e.chain.RunPre(ctx, req, res) == middleware.Stop
		if !stopped {
			if handler, ok := e.upgradeHandler(req); ok {
				c.upgrade(req, handler)
				return
			}
			e.invoke(ctx, req, res)
			// A pre-phase Stop skips the post phase entirely; the
			// short-circuit covers the whole remaining pipeline.
			e.chain.RunPost(ctx, req, res)
		}

		keepAlive := keepAliveRequested(req)
		if keepAlive {
			res.SetHeader("Connection", "keep-alive")
		} else {
			res.SetHeader("Connection", "close")
		}

		c.state = stateWritingResponse
		if _, err := res.WriteTo(rwc); err != nil {
			c.log.WithError(err).Debug("write failed")
			return
		}

		if !keepAlive {
			return
		}
		c.state = stateIdle
	}
}

// readRequest blocks until one complete request is buffered and
// parsed. io.EOF means the peer closed cleanly between requests; any
// other error is a framing or I/O failure and the caller closes the
// socket without responding.
func (c *conn) readRequest() (*http.Request, error) {
	headerEnd := -1
	for {
		if idx := bytes.Index(c.buf, headerTerminator); idx >= 0 {
			if idx > c.engine.maxHeaderBytes {
				return nil, ErrHeaderTooLarge
			}
			headerEnd = idx
			break
		}
		if len(c.buf) >= c.engine.maxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		if err := c.fill(); err != nil {
			if err == io.EOF && len(c.buf) == 0 {
				return nil, io.EOF
			}
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	req, err := http.ParseRequestHeader(c.buf[:headerEnd])
	if err != nil {
		return nil, err
	}
	rest := c.buf[headerEnd+len(headerTerminator):]

	if length := req.ContentLength(); length > 0 {
		// The declared length is attacker-controlled; bound it before
		// the allocation, not after.
		if length > c.engine.maxBodyBytes {
			return nil, ErrBodyTooLarge
		}
		c.state = stateReadingBody
		body := make([]byte, length)
		// Bytes already pulled in with the header are consumed first,
		// never re-read from the socket.
		n := copy(body, rest)
		rest = rest[n:]
		if int64(n) < length {
			if _, err := io.ReadFull(c.rwc, body[n:]); err != nil {
				return nil, ErrTruncatedBody
			}
		}
		req.Body = body
	}

	// Whatever follows this request stays buffered for the next
	// keep-alive exchange.
	c.buf = append(c.buf[:0], rest...)
	return req, nil
}

// fill reads more bytes from the socket into the buffer, growing it
// (up to the header bound) when full. Grown buffers fall out of the
// pool on release.
func (c *conn) fill() error {
	if len(c.buf) == cap(c.buf) {
		capacity := cap(c.buf) * 2
		if capacity > c.engine.maxHeaderBytes {
			capacity = c.engine.maxHeaderBytes
		}
		bigger := make([]byte, len(c.buf), capacity)
		copy(bigger, c.buf)
		c.buf = bigger
	}

	n, err := c.rwc.Read(c.buf[len(c.buf):cap(c.buf)])
	c.buf = c.buf[:len(c.buf)+n]
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	return nil
}

// upgrade flushes the 101 handshake and transfers socket ownership to
// the websocket message loop, which runs on this connection's
// goroutine. The request/response cycle never resumes.
func (c *conn) upgrade(req *http.Request, handler WSHandlerFunc) {
	res, err := websocket.Handshake(req)
	if err != nil {
		c.log.WithError(err).Debug("websocket handshake rejected")
		bad := http.NewResponse(http.StatusBadRequest, []byte("invalid websocket handshake"))
		bad.SetHeader("Connection", "close")
		bad.WriteTo(c.rwc)
		return
	}
	if _, err := res.WriteTo(c.rwc); err != nil {
		c.log.WithError(err).Debug("handshake write failed")
		return
	}

	// Take copies any bytes read past the request header, so the
	// pooled buffer can go back before the handler runs.
	ws := websocket.Take(c.rwc, c.buf)
	c.engine.bufPool.Release(c.buf)
	c.buf = nil
	c.detached = true

	defer ws.Close()
	handler(ws)
}

// keepAliveRequested applies the negotiated Connection policy:
// HTTP/1.1 stays open unless the peer says close, older versions close
// unless the peer says keep-alive.
func keepAliveRequested(req *http.Request) bool {
	value := strings.ToLower(req.Headers.Get("Connection"))
	if req.Version == http.Version11 {
		return !strings.Contains(value, "close")
	}
	return strings.Contains(value, "keep-alive")
}
