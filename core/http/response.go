package http

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
)

// Response is the outgoing side of one exchange. Headers are a
// last-write-wins map. The body is either a static byte buffer, sent
// with an exact Content-Length, or a live stream, sent with chunked
// transfer framing because its length is unknowable up front.
type Response struct {
	Version Version
	Status  Status
	Headers map[string]string

	body   []byte
	stream io.Reader
}

// NewResponse builds a static-body response. Content-Length is
// computed from the body and a default Connection header is set; the
// connection handler rewrites it once keep-alive is negotiated.
func NewResponse(status Status, body []byte) *Response {
	return &Response{
		Version: Version11,
		Status:  status,
		Headers: map[string]string{
			"Content-Length": strconv.Itoa(len(body)),
			"Connection":     "keep-alive",
		},
		body: body,
	}
}

// NewStreamResponse builds a response whose body is drained from r and
// written with chunked framing.
func NewStreamResponse(status Status, r io.Reader) *Response {
	return &Response{
		Version: Version11,
		Status:  status,
		Headers: map[string]string{
			"Transfer-Encoding": "chunked",
			"Connection":        "keep-alive",
		},
		stream: r,
	}
}

// SetHeader sets a header, replacing any previous value.
func (r *Response) SetHeader(name, value string) *Response {
	r.Headers[name] = value
	return r
}

// SetBody replaces the body with a static byte buffer and fixes up the
// framing headers accordingly.
func (r *Response) SetBody(body []byte) *Response {
	r.body = body
	r.stream = nil
	delete(r.Headers, "Transfer-Encoding")
	r.Headers["Content-Length"] = strconv.Itoa(len(body))
	return r
}

// SetStream replaces the body with a stream drained at write time and
// switches the framing headers to chunked.
func (r *Response) SetStream(stream io.Reader) *Response {
	r.stream = stream
	r.body = nil
	delete(r.Headers, "Content-Length")
	r.Headers["Transfer-Encoding"] = "chunked"
	return r
}

// SetStatus replaces the status.
func (r *Response) SetStatus(status Status) *Response {
	r.Status = status
	return r
}

// Text sets a plain-text body.
func (r *Response) Text(s string) *Response {
	r.SetBody([]byte(s))
	r.Headers["Content-Type"] = "text/plain; charset=utf-8"
	return r
}

// JSON marshals v as the body. A marshal failure degrades to a 500
// with a fixed error document, never an unserializable response.
func (r *Response) JSON(v any) *Response {
	data, err := json.Marshal(v)
	if err != nil {
		r.Status = StatusInternalServerError
		data = []byte(`{"error":"failed to serialize response"}`)
	}
	r.SetBody(data)
	r.Headers["Content-Type"] = "application/json"
	return r
}

// Body returns the static body, or nil for streaming responses.
func (r *Response) Body() []byte {
	return r.body
}

// IsStreaming reports whether the body must be chunk-framed.
func (r *Response) IsStreaming() bool {
	return r.stream != nil
}

// head renders the status line and headers, terminated by the blank
// line. Header names are emitted in sorted order so serialization is
// deterministic.
func (r *Response) head() []byte {
	size := len(r.Version) + len(r.Status.Reason) + 9
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
		size += len(name) + len(r.Headers[name]) + 4
	}
	sort.Strings(names)

	buf := make([]byte, 0, size+2)
	buf = append(buf, r.Version...)
	buf = append(buf, ' ')
	buf = append(buf, r.Status.String()...)
	buf = append(buf, '\r', '\n')
	for _, name := range names {
		buf = append(buf, name...)
		buf = append(buf, ':', ' ')
		buf = append(buf, r.Headers[name]...)
		buf = append(buf, '\r', '\n')
	}
	return append(buf, '\r', '\n')
}

// ToBytes renders the full wire form of a static response: status
// line, headers, blank line, body. For streaming responses only the
// head is rendered; the stream is drained by WriteTo.
func (r *Response) ToBytes() []byte {
	head := r.head()
	if r.stream != nil {
		return head
	}
	return append(head, r.body...)
}

// WriteTo serializes the response onto w, draining a streaming body
// chunk by chunk: <hex-size>\r\n<bytes>\r\n per chunk, terminated by
// 0\r\n\r\n. Implements io.WriterTo.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	var written int64

	n, err := w.Write(r.ToBytes())
	written += int64(n)
	if err != nil {
		return written, err
	}
	if r.stream == nil {
		return written, nil
	}

	buf := make([]byte, 8*1024)
	for {
		rn, rerr := r.stream.Read(buf)
		if rn > 0 {
			chunk := strconv.AppendInt(nil, int64(rn), 16)
			chunk = append(chunk, '\r', '\n')
			chunk = append(chunk, buf[:rn]...)
			chunk = append(chunk, '\r', '\n')
			n, err = w.Write(chunk)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	n, err = w.Write([]byte("0\r\n\r\n"))
	written += int64(n)
	return written, err
}
