package schema

// SchemaVersion is the current encoding version of recorded messages.
const SchemaVersion uint8 = 1

// EventKind describes the meaning of a market event.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	EventQuote
	EventTrade
)

func (k EventKind) String() string {
	switch k {
	case EventQuote:
		return "quote"
	case EventTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// ParseEventKind maps a wire name to an EventKind.
func ParseEventKind(s string) EventKind {
	switch s {
	case "quote", "Quote", "q", "Q":
		return EventQuote
	case "trade", "Trade", "t", "T":
		return EventTrade
	default:
		return EventUnknown
	}
}

// MessageKind tags the variant carried by a Message.
type MessageKind uint8

const (
	MessageUnknown MessageKind = iota
	MessageEvent
	MessageGap
	MessageConnectivity
)

func (k MessageKind) String() string {
	switch k {
	case MessageEvent:
		return "event"
	case MessageGap:
		return "gap"
	case MessageConnectivity:
		return "connectivity"
	default:
		return "unknown"
	}
}

// GapReason tells why a gap was raised.
type GapReason uint8

const (
	GapSequence GapReason = iota + 1
	GapReconnect
)

func (r GapReason) String() string {
	switch r {
	case GapSequence:
		return "sequence"
	case GapReconnect:
		return "reconnect"
	default:
		return "unknown"
	}
}

// ConnState is the connection state of a feed session.
type ConnState uint8

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnLive
	ConnDegraded
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnLive:
		return "live"
	case ConnDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
