/*
Package ember-server provides a minimal HTTP/1.1 server engine built
directly on TCP sockets.

The engine owns the whole request path: pooled read buffers, hand
parsed requests, a segment based radix router, a two phase middleware
pipeline, and per connection keep-alive handling. WebSocket upgrades
and server-sent event streams branch off the same pipeline.

Quick start:

	package main

	import (
		"context"
		"log"

		"github.com/searchktools/ember-server/app"
		"github.com/searchktools/ember-server/config"
		"github.com/searchktools/ember-server/core/http"
	)

	func main() {
		cfg, err := config.New()
		if err != nil {
			log.Fatal(err)
		}

		application := app.New(cfg)
		engine := application.Engine()

		engine.GET("/hello/:name", func(ctx context.Context, req *http.Request, res *http.Response) {
			res.Text("hello " + req.Param("name"))
		})

		if err := application.Run(); err != nil {
			log.Fatal(err)
		}
	}

Packages:

  - core: engine, listener, connection state machine
  - core/http: request, response, and wire parsing
  - core/router: radix tree routing with :params and * catch-alls
  - core/middleware: pre/post middleware chain with short-circuiting
  - core/websocket: RFC 6455 handshake, framing, and broadcast hub
  - core/sse: server-sent event streams and a fan-out broker
  - core/pools: bounded buffer pool backing connection reads
  - plugin: dependency-ordered plugin registry
  - app: application lifecycle and signal handling
*/
package ember
