// Package sse renders Server-Sent Events as a streaming response
// body. A Stream implements io.Reader, so handlers plug it straight
// into a chunked streaming Response.
package sse

import (
	"io"
	"strconv"
	"strings"
	"sync"
)

// Event is one server-sent event in text/event-stream framing.
type Event struct {
	ID    string
	Name  string
	Data  string
	Retry int // milliseconds, 0 to omit
}

// Render produces the wire form of the event: optional id/event/retry
// lines, one data line per line of Data, then a blank line.
func (e *Event) Render() []byte {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: ")
		b.WriteString(e.ID)
		b.WriteByte('\n')
	}
	if e.Name != "" {
		b.WriteString("event: ")
		b.WriteString(e.Name)
		b.WriteByte('\n')
	}
	if e.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(e.Retry))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(e.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// Stream is a subscriber's event feed. Read blocks until an event is
// queued and returns io.EOF once the stream is closed and drained, at
// which point the chunked response terminates cleanly.
type Stream struct {
	events  chan *Event
	pending []byte

	closeOnce sync.Once
}

// NewStream creates a stream with the given queue depth.
func NewStream(bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Stream{events: make(chan *Event, bufferSize)}
}

// Send queues an event without blocking; it reports false when the
// subscriber's queue is full and the event was dropped.
func (s *Stream) Send(event *Event) (ok bool) {
	defer func() {
		// Send on a closed stream loses the race with Close; treat it
		// as a drop instead of a crash.
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// Close ends the stream; pending events still drain to the reader.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.events) })
}

// Read implements io.Reader over the rendered event feed.
func (s *Stream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		event, ok := <-s.events
		if !ok {
			return 0, io.EOF
		}
		s.pending = event.Render()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}
