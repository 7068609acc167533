package http

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
)

// Method is an HTTP request method. Unrecognized verbs are carried
// through verbatim rather than rejected.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// ParseMethod maps a wire verb onto the enumerated methods, keeping
// unknown verbs as-is.
func ParseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	case "PATCH":
		return MethodPatch
	case "HEAD":
		return MethodHead
	case "OPTIONS":
		return MethodOptions
	default:
		return Method(s)
	}
}

// Version is the HTTP protocol version from the request line.
type Version string

const (
	Version10 Version = "HTTP/1.0"
	Version11 Version = "HTTP/1.1"
)

// Header maps lowercase field names to their ordered values. Multiple
// occurrences of the same field are preserved in arrival order.
type Header map[string][]string

// Add appends a value under the lowercased name.
func (h Header) Add(name, value string) {
	key := strings.ToLower(name)
	h[key] = append(h[key], value)
}

// Get returns the first value for name, or "".
func (h Header) Get(name string) string {
	values := h[strings.ToLower(name)]
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// Values returns all values for name in arrival order.
func (h Header) Values(name string) []string {
	return h[strings.ToLower(name)]
}

// Request is one parsed HTTP exchange. It is created fresh per request
// by the connection handler and discarded after the response is
// written; nothing retains it across exchanges.
type Request struct {
	Method  Method
	Path    string
	Query   map[string]string
	Version Version
	Headers Header
	Body    []byte

	// RemoteAddr is the peer address, when known.
	RemoteAddr net.Addr

	// Params holds captured path segments, populated by the router.
	Params map[string]string

	context *contextStore
}

// NewRequest constructs a request with empty header, query, and param
// maps. The parser fills the rest.
func NewRequest(method Method, path string, version Version) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Version: version,
		Headers: make(Header),
	}
}

// Param returns the captured path segment for name, or "".
func (r *Request) Param(name string) string {
	return r.Params[name]
}

// QueryValue returns the query parameter for name, or "".
func (r *Request) QueryValue(name string) string {
	return r.Query[name]
}

// HeaderValue returns the first header value for name, or "".
func (r *Request) HeaderValue(name string) string {
	return r.Headers.Get(name)
}

// BodyString returns the body as a string.
func (r *Request) BodyString() string {
	return string(r.Body)
}

// Bind unmarshals a JSON body into v.
func (r *Request) Bind(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ContentLength returns the declared body length, or 0 when absent or
// unparseable. The parser rejects malformed or overflowing values
// before a request reaches here; the connection handler enforces the
// body size bound before allocating.
func (r *Request) ContentLength() int64 {
	n, err := strconv.ParseInt(r.Headers.Get("Content-Length"), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
