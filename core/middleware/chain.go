// Package middleware implements the ordered pre/post filter chain the
// connection handler runs around every routed request.
package middleware

import (
	"context"

	"github.com/searchktools/ember-server/core/http"
)

// Flow is the outcome a middleware returns. Next continues the
// pipeline. Stop aborts everything that remains (later pre entries,
// the handler, and the whole post phase) and the response is sent as
// the middleware left it.
type Flow uint8

const (
	Next Flow = iota
	Stop
)

// Phase tags where an entry runs relative to the handler.
type Phase uint8

const (
	Pre Phase = iota
	Post
)

// Func is the middleware signature. Every middleware receives the
// connection's context and the live request/response pair; it may
// block on the context (I/O, database calls) without stalling other
// connections. Mutations to req and res are how values are passed
// down the chain.
type Func func(ctx context.Context, req *http.Request, res *http.Response) Flow

// Entry is one named, phase-tagged middleware.
type Entry struct {
	Name  string
	Phase Phase
	Fn    Func
}

// Chain holds the registered entries. It is assembled during startup
// and shared read-only across connections afterwards.
type Chain struct {
	pre  []Entry
	post []Entry
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Use appends a pre-phase entry in registration order.
func (c *Chain) Use(name string, fn Func) *Chain {
	c.pre = append(c.pre, Entry{Name: name, Phase: Pre, Fn: fn})
	return c
}

// UsePost appends a post-phase entry in registration order.
func (c *Chain) UsePost(name string, fn Func) *Chain {
	c.post = append(c.post, Entry{Name: name, Phase: Post, Fn: fn})
	return c
}

// RunPre executes the pre phase in registration order. It returns
// Stop as soon as any entry stops; skipping the handler and the post
// phase after that is enforced by the connection handler.
func (c *Chain) RunPre(ctx context.Context, req *http.Request, res *http.Response) Flow {
	for i := range c.pre {
		if c.pre[i].Fn(ctx, req, res) == Stop {
			return Stop
		}
	}
	return Next
}

// RunPost executes the post phase in registration order. A Stop here
// only curtails the remaining post entries.
func (c *Chain) RunPost(ctx context.Context, req *http.Request, res *http.Response) Flow {
	for i := range c.post {
		if c.post[i].Fn(ctx, req, res) == Stop {
			return Stop
		}
	}
	return Next
}

// PreLen returns the number of pre-phase entries.
func (c *Chain) PreLen() int { return len(c.pre) }

// PostLen returns the number of post-phase entries.
func (c *Chain) PostLen() int { return len(c.post) }
