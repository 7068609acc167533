package http

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrMalformedRequestLine marks an unparseable start line.
	ErrMalformedRequestLine = errors.New("malformed request line")
	// ErrMalformedHeader marks an unparseable header field.
	ErrMalformedHeader = errors.New("malformed header field")
	// ErrInvalidContentLength marks a non-numeric, negative, or
	// overflowing Content-Length.
	ErrInvalidContentLength = errors.New("invalid content length")
)

// ParseRequestHeader parses the request line and header block. head is
// everything up to (and excluding) the \r\n\r\n terminator. The body
// is read separately by the connection handler.
//
// All parse failures here are framing errors: the caller closes the
// connection without attempting a response.
func ParseRequestHeader(head []byte) (*Request, error) {
	lineEnd := bytes.IndexByte(head, '\n')
	var line, rest []byte
	if lineEnd == -1 {
		line, rest = head, nil
	} else {
		line, rest = head[:lineEnd], head[lineEnd+1:]
	}
	line = trimCR(line)

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, ErrMalformedRequestLine
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return nil, ErrMalformedRequestLine
	}
	sp2 += sp1 + 1

	method := string(line[:sp1])
	target := string(line[sp1+1 : sp2])
	version := string(line[sp2+1:])
	if target == "" || !strings.HasPrefix(version, "HTTP/") {
		return nil, ErrMalformedRequestLine
	}

	req := NewRequest(ParseMethod(method), target, Version(version))
	if idx := strings.IndexByte(target, '?'); idx != -1 {
		req.Path = target[:idx]
		req.Query = parseQuery(target[idx+1:])
	}

	if err := parseHeaders(req, rest); err != nil {
		return nil, err
	}
	if cl := req.Headers.Get("Content-Length"); cl != "" {
		// ParseInt also catches values that overflow int64, which a
		// digit check alone would let wrap.
		if n, err := strconv.ParseInt(cl, 10, 64); err != nil || n < 0 {
			return nil, ErrInvalidContentLength
		}
	}
	return req, nil
}

// parseHeaders parses "Name: Value" lines into the request header map,
// preserving the arrival order of repeated fields.
func parseHeaders(req *Request, data []byte) error {
	for len(data) > 0 {
		lineEnd := bytes.IndexByte(data, '\n')
		var line []byte
		if lineEnd == -1 {
			line, data = data, nil
		} else {
			line, data = data[:lineEnd], data[lineEnd+1:]
		}
		line = trimCR(line)
		if len(line) == 0 {
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return ErrMalformedHeader
		}
		name := string(bytes.TrimSpace(line[:colon]))
		value := string(bytes.TrimSpace(line[colon+1:]))
		if name == "" {
			return ErrMalformedHeader
		}
		req.Headers.Add(name, value)
	}
	return nil
}

// parseQuery splits a raw query string into a key/value map. Keys are
// unique; the last occurrence wins.
func parseQuery(raw string) map[string]string {
	query := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq != -1 {
			query[pair[:eq]] = pair[eq+1:]
		} else {
			query[pair] = ""
		}
	}
	return query
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
