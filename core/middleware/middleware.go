package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/searchktools/ember-server/core/http"
)

// RequestID carries the generated request identifier through the
// request context store.
type RequestID struct {
	ID string
}

// NewRequestID returns a pre middleware that tags every request with a
// UUID, stored in the request context and echoed as X-Request-ID.
func NewRequestID() Func {
	return func(ctx context.Context, req *http.Request, res *http.Response) Flow {
		id := uuid.NewString()
		http.SetValue(req, RequestID{ID: id})
		res.SetHeader("X-Request-ID", id)
		return Next
	}
}

type requestStart struct {
	at time.Time
}

// NewTiming returns a pre middleware recording the request start time
// for the access logger.
func NewTiming() Func {
	return func(ctx context.Context, req *http.Request, res *http.Response) Flow {
		http.SetValue(req, requestStart{at: time.Now()})
		return Next
	}
}

// NewAccessLog returns a post middleware that writes one structured
// access line per request. Pair it with NewTiming to get durations.
func NewAccessLog(log *logrus.Entry) Func {
	return func(ctx context.Context, req *http.Request, res *http.Response) Flow {
		fields := logrus.Fields{
			"method": string(req.Method),
			"path":   req.Path,
			"status": res.Status.Code,
		}
		if start, ok := http.Value[requestStart](req); ok {
			fields["duration"] = time.Since(start.at).String()
		}
		if id, ok := http.Value[RequestID](req); ok {
			fields["request_id"] = id.ID
		}
		log.WithFields(fields).Info("request")
		return Next
	}
}

// NewCORS returns a pre middleware that sets permissive CORS headers
// and short-circuits OPTIONS preflight requests with a 204.
func NewCORS() Func {
	return func(ctx context.Context, req *http.Request, res *http.Response) Flow {
		res.SetHeader("Access-Control-Allow-Origin", "*")
		res.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		res.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if req.Method == http.MethodOptions {
			res.SetStatus(http.StatusNoContent).SetBody(nil)
			return Stop
		}
		return Next
	}
}

// NewRateLimit returns a pre middleware enforcing a per-second token
// bucket across all connections. Exhausted buckets answer 429.
func NewRateLimit(requestsPerSecond int) Func {
	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = time.Now()
	)

	return func(ctx context.Context, req *http.Request, res *http.Response) Flow {
		mu.Lock()
		if now := time.Now(); now.Sub(lastRefill) >= time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}
		if tokens > 0 {
			tokens--
			mu.Unlock()
			return Next
		}
		mu.Unlock()

		res.SetStatus(http.StatusTooManyRequests).
			JSON(map[string]any{"error": "too many requests"})
		return Stop
	}
}
