package exception

import "errors"

// Subscription and session errors
var (
	ErrCapacityExceeded = errors.New("subscription: capacity exceeded")
	ErrUnknownSession   = errors.New("subscription: unknown session")
	ErrSessionClosed    = errors.New("subscription: session closed")
	ErrUnauthorized     = errors.New("subscription: unauthorized")
	ErrUnknownView      = errors.New("subscription: unknown view")
	ErrManagerClosed    = errors.New("subscription: manager closed")
)
