// Package router implements the radix tree that maps (method, path)
// pairs to handlers. Paths are decomposed on '/': a segment starting
// with ':' captures the matched segment under its name, and a trailing
// '*' segment is a terminal catch-all. Literal segments always win
// over parameter segments at the same depth.
package router

import (
	"context"
	"strings"

	"github.com/searchktools/ember-server/core/http"
)

// HandlerFunc is the signature for route handlers. Handlers mutate the
// response in place and may block on the context.
type HandlerFunc func(ctx context.Context, req *http.Request, res *http.Response)

// Router is a per-segment radix tree. It is assembled before the
// listener starts and is read-only afterwards, so lookups take no
// locks.
type Router struct {
	root *node
}

type node struct {
	children map[string]*node
	param    *node
	catchAll *node

	paramName string
	handlers  map[string]HandlerFunc // method -> handler
}

func newNode() *node {
	return &node{}
}

// New creates an empty router.
func New() *Router {
	return &Router{root: newNode()}
}

// Add registers a handler for method and path. Registration conflicts
// are programming errors and panic: paths must begin with '/', two
// different parameter names may not share a tree position, and a
// catch-all segment must be terminal.
func (r *Router) Add(method, path string, handler HandlerFunc) {
	if path == "" || path[0] != '/' {
		panic("router: path must begin with '/'")
	}

	current := r.root
	segments := splitPath(path)
	for i, segment := range segments {
		switch {
		case segment == "*":
			if i != len(segments)-1 {
				panic("router: catch-all segment must be terminal: " + path)
			}
			if current.catchAll == nil {
				current.catchAll = newNode()
			}
			current = current.catchAll

		case strings.HasPrefix(segment, ":"):
			name := segment[1:]
			if name == "" {
				panic("router: parameter segment must be named: " + path)
			}
			if current.param == nil {
				current.param = newNode()
				current.param.paramName = name
			} else if current.param.paramName != name {
				// A single shared parameter child per node means two
				// names at one position would silently shadow each
				// other; reject at registration instead.
				panic("router: conflicting parameter names ':" + current.param.paramName +
					"' and ':" + name + "' in " + path)
			}
			current = current.param

		default:
			if current.children == nil {
				current.children = make(map[string]*node)
			}
			child, ok := current.children[segment]
			if !ok {
				child = newNode()
				current.children[segment] = child
			}
			current = child
		}
	}

	if current.handlers == nil {
		current.handlers = make(map[string]HandlerFunc)
	}
	current.handlers[strings.ToUpper(method)] = handler
}

// Find walks the tree for path and returns the handler registered for
// method together with the captured parameters, or (nil, nil) when no
// route matches. Literal children are tried before the parameter
// child at every depth, with backtracking.
func (r *Router) Find(method http.Method, path string) (HandlerFunc, map[string]string) {
	segments := splitPath(path)
	var params map[string]string
	terminal := match(r.root, segments, &params)
	if terminal == nil {
		return nil, nil
	}
	handler, ok := terminal.handlers[string(method)]
	if !ok {
		return nil, nil
	}
	return handler, params
}

func match(n *node, segments []string, params *map[string]string) *node {
	if len(segments) == 0 {
		if n.handlers != nil {
			return n
		}
		return nil
	}

	segment, rest := segments[0], segments[1:]

	if child, ok := n.children[segment]; ok {
		if terminal := match(child, rest, params); terminal != nil {
			return terminal
		}
	}

	if n.param != nil {
		if terminal := match(n.param, rest, params); terminal != nil {
			if *params == nil {
				*params = make(map[string]string)
			}
			(*params)[n.param.paramName] = segment
			return terminal
		}
	}

	if n.catchAll != nil && n.catchAll.handlers != nil {
		if *params == nil {
			*params = make(map[string]string)
		}
		(*params)["*"] = strings.Join(segments, "/")
		return n.catchAll
	}

	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
