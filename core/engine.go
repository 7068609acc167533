package core

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/ember-server/core/http"
	"github.com/searchktools/ember-server/core/middleware"
	"github.com/searchktools/ember-server/core/pools"
	"github.com/searchktools/ember-server/core/router"
	"github.com/searchktools/ember-server/core/websocket"
)

// HandlerFunc handles one routed request by mutating the response.
type HandlerFunc = router.HandlerFunc

// WSHandlerFunc owns an upgraded connection until either side closes.
type WSHandlerFunc func(conn *websocket.Conn)

// Engine wires the buffer pool, router, middleware chain, and upgrade
// table to the per-connection state machine. Routes, middleware, and
// upgrade handlers are registered before Serve and shared read-only by
// every connection goroutine afterwards.
type Engine struct {
	router   *router.Router
	chain    *middleware.Chain
	wsRoutes map[string]WSHandlerFunc
	bufPool  *pools.BufferPool
	log      *logrus.Entry

	maxHeaderBytes int
	maxBodyBytes   int64
	maxConnections int

	mu sync.Mutex
	ln net.Listener
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the engine's logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) {
		e.log = log.WithField("component", "engine")
	}
}

// WithMaxHeaderBytes bounds the request header block.
func WithMaxHeaderBytes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHeaderBytes = n
		}
	}
}

// WithMaxBodyBytes bounds the declared request body length.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxBodyBytes = n
		}
	}
}

// WithMaxConnections caps concurrent accepted connections.
func WithMaxConnections(n int) Option {
	return func(e *Engine) {
		e.maxConnections = n
	}
}

// WithBufferPool overrides the read buffer pool geometry.
func WithBufferPool(size, capacity int) Option {
	return func(e *Engine) {
		e.bufPool = pools.NewBufferPool(size, capacity)
	}
}

// NewEngine creates an engine with default limits.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		router:         router.New(),
		chain:          middleware.NewChain(),
		wsRoutes:       make(map[string]WSHandlerFunc),
		bufPool:        pools.NewBufferPool(pools.DefaultBufferSize, pools.DefaultPoolCapacity),
		log:            logrus.StandardLogger().WithField("component", "engine"),
		maxHeaderBytes: DefaultMaxHeaderBytes,
		maxBodyBytes:   DefaultMaxBodyBytes,
		maxConnections: DefaultMaxConnections,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle registers a handler for an arbitrary method and path.
func (e *Engine) Handle(method, path string, handler HandlerFunc) {
	e.router.Add(method, path, handler)
}

// GET registers a GET route.
func (e *Engine) GET(path string, handler HandlerFunc) { e.Handle("GET", path, handler) }

// POST registers a POST route.
func (e *Engine) POST(path string, handler HandlerFunc) { e.Handle("POST", path, handler) }

// PUT registers a PUT route.
func (e *Engine) PUT(path string, handler HandlerFunc) { e.Handle("PUT", path, handler) }

// DELETE registers a DELETE route.
func (e *Engine) DELETE(path string, handler HandlerFunc) { e.Handle("DELETE", path, handler) }

// PATCH registers a PATCH route.
func (e *Engine) PATCH(path string, handler HandlerFunc) { e.Handle("PATCH", path, handler) }

// HEAD registers a HEAD route.
func (e *Engine) HEAD(path string, handler HandlerFunc) { e.Handle("HEAD", path, handler) }

// OPTIONS registers an OPTIONS route.
func (e *Engine) OPTIONS(path string, handler HandlerFunc) { e.Handle("OPTIONS", path, handler) }

// Use appends a named pre-phase middleware.
func (e *Engine) Use(name string, fn middleware.Func) {
	e.chain.Use(name, fn)
}

// UsePost appends a named post-phase middleware.
func (e *Engine) UsePost(name string, fn middleware.Func) {
	e.chain.UsePost(name, fn)
}

// WS registers a WebSocket upgrade handler for path. Upgrade requests
// to this path leave the request/response cycle after the handshake.
func (e *Engine) WS(path string, handler WSHandlerFunc) {
	e.wsRoutes[path] = handler
}

// Router exposes the routing tree for registration layers.
func (e *Engine) Router() *router.Router { return e.router }

// Chain exposes the middleware chain for registration layers.
func (e *Engine) Chain() *middleware.Chain { return e.chain }

// PoolStats reports buffer pool counters.
func (e *Engine) PoolStats() pools.BufferStats { return e.bufPool.Stats() }

// Run binds addr (with address/port reuse) and serves until Close.
func (e *Engine) Run(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := Listen(addr)
	if err != nil {
		return err
	}
	e.log.WithField("addr", addr).Info("listening")
	return e.Serve(ln)
}

// Serve accepts connections from ln, one goroutine per connection.
// Accept failures are logged and the loop continues; only closing the
// listener ends it.
func (e *Engine) Serve(ln net.Listener) error {
	ln = limitListener(ln, e.maxConnections)

	e.mu.Lock()
	e.ln = ln
	e.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			e.log.WithError(err).Warn("accept failed")
			continue
		}
		go e.serveConn(conn)
	}
}

// Close stops the accept loop. In-flight connections finish their
// current exchange on their own goroutines.
func (e *Engine) Close() error {
	e.mu.Lock()
	ln := e.ln
	e.ln = nil
	e.mu.Unlock()

	if ln == nil {
		return nil
	}
	return ln.Close()
}

// upgradeHandler matches an upgrade request against the registered
// upgrade table.
func (e *Engine) upgradeHandler(req *http.Request) (WSHandlerFunc, bool) {
	if !websocket.IsUpgradeRequest(req) {
		return nil, false
	}
	handler, ok := e.wsRoutes[req.Path]
	return handler, ok
}

// invoke performs the router lookup and runs the matched handler, or
// synthesizes a 404. A panicking handler is confined to its connection
// and surfaces as a 500.
func (e *Engine) invoke(ctx context.Context, req *http.Request, res *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Error("handler panic recovered")
			res.SetStatus(http.StatusInternalServerError).
				JSON(map[string]any{"error": "internal server error"})
		}
	}()

	handler, params := e.router.Find(req.Method, req.Path)
	if handler == nil {
		res.SetStatus(http.StatusNotFound).
			JSON(map[string]any{"error": "not found", "path": req.Path})
		return
	}
	req.Params = params
	handler(ctx, req, res)
}
