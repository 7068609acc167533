package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/ember-server/core/http"
	"github.com/searchktools/ember-server/core/middleware"
	"github.com/searchktools/ember-server/core/websocket"
)

func startEngine(t *testing.T, engine *Engine) net.Addr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go engine.Serve(ln)
	t.Cleanup(func() { engine.Close() })
	return ln.Addr()
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

type clientResponse struct {
	statusLine string
	headers    map[string]string
	body       string
}

// readResponse consumes exactly one response off the wire, honoring
// Content-Length or chunked framing, so keep-alive tests can read
// several in a row.
func readResponse(t *testing.T, br *bufio.Reader) clientResponse {
	t.Helper()

	statusLine, err := br.ReadString('\n')
	require.NoError(t, err)

	res := clientResponse{
		statusLine: strings.TrimRight(statusLine, "\r\n"),
		headers:    make(map[string]string),
	}
	for {
		line, err := br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ": ")
		require.True(t, ok, "header line %q", line)
		res.headers[strings.ToLower(name)] = value
	}

	if res.headers["transfer-encoding"] == "chunked" {
		var body strings.Builder
		for {
			sizeLine, err := br.ReadString('\n')
			require.NoError(t, err)
			size, err := strconv.ParseInt(strings.TrimRight(sizeLine, "\r\n"), 16, 64)
			require.NoError(t, err)
			if size == 0 {
				br.ReadString('\n')
				break
			}
			chunk := make([]byte, size)
			_, err = io.ReadFull(br, chunk)
			require.NoError(t, err)
			body.Write(chunk)
			br.ReadString('\n')
		}
		res.body = body.String()
		return res
	}

	if cl := res.headers["content-length"]; cl != "" {
		length, err := strconv.Atoi(cl)
		require.NoError(t, err)
		body := make([]byte, length)
		_, err = io.ReadFull(br, body)
		require.NoError(t, err)
		res.body = string(body)
	}
	return res
}

func quietEngine(opts ...Option) *Engine {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewEngine(append([]Option{WithLogger(log)}, opts...)...)
}

func TestEngineRoutesRequest(t *testing.T) {
	engine := quietEngine()
	engine.GET("/greet/:name", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("hello " + req.Param("name"))
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET /greet/ada HTTP/1.1\r\nHost: test\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 200 OK", res.statusLine)
	assert.Equal(t, "hello ada", res.body)
	assert.Equal(t, "keep-alive", res.headers["connection"])
}

func TestEngineKeepAliveServesSequentialRequests(t *testing.T) {
	engine := quietEngine()
	var served atomic.Int64
	engine.GET("/count", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text(strconv.FormatInt(served.Add(1), 10))
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	br := bufio.NewReader(conn)

	for i := 1; i <= 3; i++ {
		fmt.Fprintf(conn, "GET /count HTTP/1.1\r\nHost: test\r\n\r\n")
		res := readResponse(t, br)
		assert.Equal(t, strconv.Itoa(i), res.body, "request %d reuses the connection", i)
	}
}

func TestEnginePostBody(t *testing.T) {
	engine := quietEngine()
	engine.POST("/echo", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.SetStatus(http.StatusCreated).Text(req.BodyString())
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	body := `{"name":"ember"}`
	fmt.Fprintf(conn, "POST /echo HTTP/1.1\r\nHost: test\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 201 Created", res.statusLine)
	assert.Equal(t, body, res.body)
}

func TestEngineNotFound(t *testing.T) {
	engine := quietEngine()
	engine.GET("/known", func(ctx context.Context, req *http.Request, res *http.Response) {})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET /unknown HTTP/1.1\r\nHost: test\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 404 Not Found", res.statusLine)
	assert.NotEmpty(t, res.body, "404 carries a body, not just a status")
	assert.Contains(t, res.body, "not found")
}

func TestEnginePreStopSkipsHandlerAndPost(t *testing.T) {
	engine := quietEngine()

	var handlerRan, postRan atomic.Bool
	engine.Use("gate", func(ctx context.Context, req *http.Request, res *http.Response) middleware.Flow {
		if req.HeaderValue("Authorization") == "" {
			res.SetStatus(http.StatusUnauthorized).JSON(map[string]string{"error": "unauthorized"})
			return middleware.Stop
		}
		return middleware.Next
	})
	engine.UsePost("audit", func(ctx context.Context, req *http.Request, res *http.Response) middleware.Flow {
		postRan.Store(true)
		return middleware.Next
	})
	engine.GET("/secret", func(ctx context.Context, req *http.Request, res *http.Response) {
		handlerRan.Store(true)
		res.Text("secret")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	br := bufio.NewReader(conn)

	fmt.Fprintf(conn, "GET /secret HTTP/1.1\r\nHost: test\r\n\r\n")
	res := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 401 Unauthorized", res.statusLine)
	assert.False(t, handlerRan.Load(), "stopped request must not reach the handler")
	assert.False(t, postRan.Load(), "stopped request must skip the post phase")

	// The same connection recovers: an authorized request flows through.
	fmt.Fprintf(conn, "GET /secret HTTP/1.1\r\nHost: test\r\nAuthorization: token\r\n\r\n")
	res = readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 200 OK", res.statusLine)
	assert.True(t, handlerRan.Load())
	assert.True(t, postRan.Load())
}

func TestEngineConnectionClose(t *testing.T) {
	engine := quietEngine()
	engine.GET("/", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("bye")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	br := bufio.NewReader(conn)
	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n")

	res := readResponse(t, br)
	assert.Equal(t, "close", res.headers["connection"])

	_, err := br.ReadByte()
	assert.ErrorIs(t, err, io.EOF, "server closes after Connection: close")
}

func TestEngineHTTP10DefaultsToClose(t *testing.T) {
	engine := quietEngine()
	engine.GET("/", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("old")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	br := bufio.NewReader(conn)
	fmt.Fprintf(conn, "GET / HTTP/1.0\r\nHost: test\r\n\r\n")

	res := readResponse(t, br)
	assert.Equal(t, "close", res.headers["connection"])
	_, err := br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEngineMalformedRequestClosesWithoutResponse(t *testing.T) {
	engine := quietEngine()
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "NOT A REAL REQUEST\r\n\r\n")

	data, _ := io.ReadAll(conn)
	assert.Empty(t, data, "framing errors get no response, just a closed socket")
}

func TestEngineHugeContentLengthClosesWithoutAllocating(t *testing.T) {
	engine := quietEngine()
	engine.POST("/upload", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("never reached")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	// The largest declared length that still parses; accepting it would
	// mean attempting a 9 EiB allocation on the connection goroutine.
	fmt.Fprintf(conn, "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Length: 9223372036854775807\r\n\r\n")

	data, _ := io.ReadAll(conn)
	assert.Empty(t, data, "oversized declared body gets no response, just a closed socket")

	// The listener survives: the next connection is served normally.
	conn = dial(t, addr)
	fmt.Fprintf(conn, "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Length: 2\r\n\r\nok")
	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 200 OK", res.statusLine)
}

func TestEngineBodyOverConfiguredBoundCloses(t *testing.T) {
	engine := quietEngine(WithMaxBodyBytes(16))
	engine.POST("/upload", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("accepted")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	body := strings.Repeat("x", 64)
	fmt.Fprintf(conn, "POST /upload HTTP/1.1\r\nHost: test\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	data, _ := io.ReadAll(conn)
	assert.Empty(t, data)
}

func TestEngineHeaderTooLargeClosesConnection(t *testing.T) {
	engine := quietEngine(WithMaxHeaderBytes(256))
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET / HTTP/1.1\r\nX-Huge: %s\r\n\r\n", strings.Repeat("a", 1024))

	data, _ := io.ReadAll(conn)
	assert.Empty(t, data)
}

func TestEnginePanicBecomes500(t *testing.T) {
	engine := quietEngine()
	engine.GET("/boom", func(ctx context.Context, req *http.Request, res *http.Response) {
		panic("handler exploded")
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET /boom HTTP/1.1\r\nHost: test\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 500 Internal Server Error", res.statusLine)
	assert.Contains(t, res.body, "internal server error")
}

func TestEngineStreamingResponse(t *testing.T) {
	engine := quietEngine()
	engine.GET("/stream", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.SetStream(strings.NewReader("streamed over chunks"))
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET /stream HTTP/1.1\r\nHost: test\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "chunked", res.headers["transfer-encoding"])
	assert.Equal(t, "streamed over chunks", res.body)
}

func TestEngineWebSocketUpgrade(t *testing.T) {
	engine := quietEngine()
	engine.WS("/ws/echo", func(conn *websocket.Conn) {
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msg.Opcode, msg.Payload); err != nil {
				return
			}
		}
	})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	br := bufio.NewReader(conn)
	fmt.Fprintf(conn, "GET /ws/echo HTTP/1.1\r\n"+
		"Host: test\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n")

	res := readResponse(t, br)
	assert.Equal(t, "HTTP/1.1 101 Switching Protocols", res.statusLine)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", res.headers["sec-websocket-accept"])

	client := websocket.Take(&bufferedConn{Conn: conn, reader: br}, nil)
	require.NoError(t, client.WriteText("ping me back"))

	msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping me back", string(msg.Payload))
}

func TestEngineUpgradeToUnregisteredPathFallsThrough(t *testing.T) {
	engine := quietEngine()
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	fmt.Fprintf(conn, "GET /nowhere HTTP/1.1\r\n"+
		"Host: test\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 404 Not Found", res.statusLine)
}

func TestEngineBadHandshakeGets400(t *testing.T) {
	engine := quietEngine()
	engine.WS("/ws", func(conn *websocket.Conn) {})
	addr := startEngine(t, engine)

	conn := dial(t, addr)
	// Upgrade headers present but the key is missing.
	fmt.Fprintf(conn, "GET /ws HTTP/1.1\r\n"+
		"Host: test\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n\r\n")

	res := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, "HTTP/1.1 400 Bad Request", res.statusLine)
	assert.Equal(t, "close", res.headers["connection"])
}

func TestEngineReleasesBuffersBackToPool(t *testing.T) {
	engine := quietEngine(WithBufferPool(8192, 16))
	engine.GET("/", func(ctx context.Context, req *http.Request, res *http.Response) {
		res.Text("ok")
	})
	addr := startEngine(t, engine)

	for i := 0; i < 3; i++ {
		conn := dial(t, addr)
		fmt.Fprintf(conn, "GET / HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n")
		readResponse(t, bufio.NewReader(conn))
		conn.Close()
	}

	// Connection goroutines release asynchronously after close.
	assert.Eventually(t, func() bool {
		return engine.PoolStats().Free > 0
	}, time.Second, 10*time.Millisecond)
}

// bufferedConn lets the websocket client reuse bytes already pulled
// into the handshake reader.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}
