package exception

import "errors"

// Feed errors
var (
	ErrTransientFeed     = errors.New("feed: transient failure")
	ErrGap               = errors.New("feed: sequence gap")
	ErrMalformedEvent    = errors.New("feed: malformed event")
	ErrRetryExhausted    = errors.New("feed: reconnect retries exhausted")
	ErrAdapterRunning    = errors.New("feed: adapter already running")
	ErrNotConnected      = errors.New("feed: not connected")
	ErrNilSource         = errors.New("feed: nil source")
	ErrUnknownSymbol     = errors.New("feed: unknown symbol")
	ErrResumeUnsupported = errors.New("feed: resume unsupported")
	ErrStreamClosed      = errors.New("feed: stream closed")
	ErrOutOfOrder        = errors.New("feed: out of order event")
)
