package server

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ResponseType classifies the outcome of a server call.
type ResponseType int

const (
	ResponseOK ResponseType = iota
	ResponseBadReq
	ResponseReqFail
	ResponseTimedOut
	ResponseNoContent
	ResponseServerDied
	ResponseUnsupported
)

func (r ResponseType) String() string {
	switch r {
	case ResponseOK:
		return "OK"
	case ResponseBadReq:
		return "BADREQ"
	case ResponseReqFail:
		return "REQFAIL"
	case ResponseTimedOut:
		return "TIMEDOUT"
	case ResponseNoContent:
		return "NO_CONTENT"
	case ResponseServerDied:
		return "SERVERDIED"
	case ResponseUnsupported:
		return "UNSUPPORTED"
	default:
		return fmt.Sprintf("ResponseType(%d)", int(r))
	}
}

// Error is the failure value returned by every Server operation.
type Error struct {
	Code ResponseType
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Code.String() + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Code.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Code.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ResponseType, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(code ResponseType, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// ErrUnsupported is returned by backends that lack an operation.
var ErrUnsupported = &Error{Code: ResponseUnsupported, Msg: "operation not supported by this server"}

// ResponseOf maps err to a ResponseType. Context deadlines and network
// timeouts become ResponseTimedOut; unclassified errors ResponseReqFail.
func ResponseOf(err error) ResponseType {
	if err == nil {
		return ResponseOK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ResponseTimedOut
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ResponseTimedOut
	}
	return ResponseReqFail
}

// asError normalises err into an *Error.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Code: ResponseOf(err), Err: err}
}

// IsUnsupported reports whether err says the backend lacks an operation.
func IsUnsupported(err error) bool { return ResponseOf(err) == ResponseUnsupported }

// IsNoContent reports whether a request succeeded but produced no data.
func IsNoContent(err error) bool { return err != nil && ResponseOf(err) == ResponseNoContent }
