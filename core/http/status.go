package http

import "strconv"

// Status is a response status: a numeric code plus its reason phrase.
// The predeclared values cover the codes the engine synthesizes;
// CustomStatus builds anything else.
type Status struct {
	Code   int
	Reason string
}

var (
	StatusOK                  = Status{200, "OK"}
	StatusCreated             = Status{201, "Created"}
	StatusNoContent           = Status{204, "No Content"}
	StatusFound               = Status{302, "Found"}
	StatusBadRequest          = Status{400, "Bad Request"}
	StatusUnauthorized        = Status{401, "Unauthorized"}
	StatusForbidden           = Status{403, "Forbidden"}
	StatusNotFound            = Status{404, "Not Found"}
	StatusTooManyRequests     = Status{429, "Too Many Requests"}
	StatusInternalServerError = Status{500, "Internal Server Error"}
	StatusSwitchingProtocols  = Status{101, "Switching Protocols"}
)

// CustomStatus builds a status with an arbitrary code and phrase.
func CustomStatus(code int, reason string) Status {
	return Status{Code: code, Reason: reason}
}

// String renders the status-line form, e.g. "200 OK".
func (s Status) String() string {
	return strconv.Itoa(s.Code) + " " + s.Reason
}
