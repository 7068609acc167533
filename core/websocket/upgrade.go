package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net"
	"strings"

	"github.com/searchktools/ember-server/core/http"
)

// protocolGUID is the fixed GUID RFC 6455 appends to the client key
// before hashing.
const protocolGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrNotUpgrade is returned by Handshake for requests that are not
// valid WebSocket upgrades.
var ErrNotUpgrade = errors.New("websocket: not an upgrade request")

// IsUpgradeRequest reports whether req asks for a WebSocket upgrade,
// judged from the Upgrade and Connection headers.
func IsUpgradeRequest(req *http.Request) bool {
	if !strings.EqualFold(req.Headers.Get("Upgrade"), "websocket") {
		return false
	}
	return headerContainsToken(req.Headers.Get("Connection"), "upgrade")
}

// AcceptKey derives the deterministic Sec-WebSocket-Accept value for a
// client Sec-WebSocket-Key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + protocolGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Handshake validates the upgrade request and builds the 101 response
// carrying the derived accept key. The caller flushes the response and
// then hands the socket to Take.
func Handshake(req *http.Request) (*http.Response, error) {
	if !IsUpgradeRequest(req) {
		return nil, ErrNotUpgrade
	}
	key := req.Headers.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, errors.New("websocket: missing Sec-WebSocket-Key")
	}

	res := http.NewResponse(http.StatusSwitchingProtocols, nil)
	delete(res.Headers, "Content-Length")
	res.SetHeader("Upgrade", "websocket")
	res.SetHeader("Connection", "Upgrade")
	res.SetHeader("Sec-WebSocket-Accept", AcceptKey(key))
	return res, nil
}

// Take assumes ownership of the raw socket after the 101 response has
// been flushed. leftover replays bytes already read past the request
// header.
func Take(raw net.Conn, leftover []byte) *Conn {
	return newConn(raw, leftover)
}

// headerContainsToken reports whether a comma-separated header value
// contains token, case-insensitively.
func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
