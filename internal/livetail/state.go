package livetail

import "fmt"

// State is the lifecycle state of a subscription.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateStreaming
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventType identifies what an Event carries.
type EventType int

const (
	EventFrame EventType = iota // Frame is set
	EventError                  // Err is set
	EventState                  // State is set
)

// Event is one item of a subscription's event sequence.
type Event struct {
	Type  EventType
	Frame *Frame
	Err   error
	State State
}

// Close codes used by the stream.
const (
	CloseNormal          = 1000
	CloseUnsupportedData = 1003
	CloseAbnormal        = 1006
)

// CloseError reports a close frame received from the server.
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("websocket closed with code %d", e.Code)
	}
	return fmt.Sprintf("websocket closed with code %d: %s", e.Code, e.Text)
}
