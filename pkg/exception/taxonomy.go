package exception

import (
	"fmt"
	"strings"
)

// TransientFeedError is a recoverable upstream failure. The feed adapter retries it with backoff.
type TransientFeedError struct {
	AdapterID string
	Attempt   int
	Err       error
}

func (e *TransientFeedError) Error() string {
	var b strings.Builder
	b.WriteString("transient feed error")
	if e.AdapterID != "" {
		b.WriteString(": adapter=")
		b.WriteString(e.AdapterID)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " attempt=%d", e.Attempt)
	}
	if e.Err != nil {
		b.WriteString(", err: ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransientFeedError) Unwrap() error { return e.Err }

func (e *TransientFeedError) Is(target error) bool { return target == ErrTransientFeed }

// GapError describes a per-symbol sequence discontinuity.
type GapError struct {
	Symbol   string
	Expected uint64
	Got      uint64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("sequence gap: symbol=%s expected=%d got=%d", e.Symbol, e.Expected, e.Got)
}

func (e *GapError) Is(target error) bool { return target == ErrGap }

// MalformedEventError marks an upstream payload that cannot be normalized.
type MalformedEventError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedEventError) Error() string {
	msg := "malformed event"
	if e.Source != "" {
		msg += ": source=" + e.Source
	}
	if e.Reason != "" {
		msg += " reason=" + e.Reason
	}
	if e.Err != nil {
		msg += ", err: " + e.Err.Error()
	}
	return msg
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

func (e *MalformedEventError) Is(target error) bool { return target == ErrMalformedEvent }

// Malformed builds a MalformedEventError.
func Malformed(source, reason string, err error) error {
	return &MalformedEventError{Source: source, Reason: reason, Err: err}
}

// OverflowError reports that a subscriber queue evicted its oldest element.
type OverflowError struct {
	Topic   string
	Dropped uint64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("subscriber queue overflow: topic=%s dropped=%d", e.Topic, e.Dropped)
}

func (e *OverflowError) Is(target error) bool { return target == ErrOverflow }

// CapacityExceededError rejects a view whose symbol count is over the configured limit.
// Error returns a message that can be shown to the end user.
type CapacityExceededError struct {
	Scope     string
	Key       string
	Limit     int
	Requested int
}

func (e *CapacityExceededError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s needs %d symbols, the limit is %d", e.Scope, e.Requested, e.Limit)
	}
	return fmt.Sprintf("%s %s needs %d symbols, the limit is %d", e.Scope, e.Key, e.Requested, e.Limit)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }
