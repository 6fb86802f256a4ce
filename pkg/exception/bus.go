package exception

import "errors"

// Event bus errors
var (
	ErrOverflow           = errors.New("bus: subscriber queue overflow")
	ErrSubscriptionClosed = errors.New("bus: subscription closed")
	ErrBusClosed          = errors.New("bus: closed")
	ErrEmptyTopic         = errors.New("bus: empty topic")
)
