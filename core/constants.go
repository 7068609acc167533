package core

import "errors"

// Engine defaults
const (
	DefaultAddr           = ":8080"
	DefaultMaxHeaderBytes = 64 * 1024
	DefaultMaxBodyBytes   = 10 * 1024 * 1024
	DefaultMaxConnections = 100000
)

// Connection-level error definitions. These are all fatal to their
// connection and never produce an HTTP response, because no valid
// exchange could be framed.
var (
	ErrHeaderTooLarge = errors.New("request header exceeds size limit")
	ErrBodyTooLarge   = errors.New("declared body exceeds size limit")
	ErrTruncatedBody  = errors.New("connection closed before declared body arrived")
)
