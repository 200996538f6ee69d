package connection

import (
	"errors"
	"fmt"
)

// RequestState tracks the request side of the mailbox.
type RequestState int

const (
	RequestInit RequestState = iota
	RequestWait
	RequestTimedOut
	RequestGetData
)

func (s RequestState) String() string {
	switch s {
	case RequestInit:
		return "INIT"
	case RequestWait:
		return "WAIT"
	case RequestTimedOut:
		return "TIMED_OUT"
	case RequestGetData:
		return "GETDATA"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

// ReplyState is what the poller observes. DIED and CANCELLED are terminal.
type ReplyState int

const (
	ReplyInit ReplyState = iota
	ReplyWait
	ReplyGotData
	ReplyReqError
	ReplyDied
	ReplyCancelled
)

func (s ReplyState) String() string {
	switch s {
	case ReplyInit:
		return "INIT"
	case ReplyWait:
		return "WAIT"
	case ReplyGotData:
		return "GOTDATA"
	case ReplyReqError:
		return "REQERROR"
	case ReplyDied:
		return "DIED"
	case ReplyCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("ReplyState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s ReplyState) Terminal() bool { return s == ReplyDied || s == ReplyCancelled }

// needsAck reports whether the poller must call SetReply(ReplyWait) before
// another request may be issued.
func (s ReplyState) needsAck() bool { return s == ReplyGotData || s == ReplyReqError }

var (
	// ErrRequestOutstanding is returned by Request while a previous request
	// is queued, being serviced or its reply is unacknowledged.
	ErrRequestOutstanding = errors.New("connection: request outstanding")
	// ErrConnectionDead is returned once the connection was killed or its
	// worker has ended.
	ErrConnectionDead = errors.New("connection: connection is dead")
	// ErrBadTransition is returned by SetReply for anything other than
	// acknowledging GOTDATA or REQERROR.
	ErrBadTransition = errors.New("connection: invalid reply transition")
)
