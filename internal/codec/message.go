package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

const (
	messagePrefixSize = 4
	eventBodySize     = 1 + 8*5
	gapBodySize       = 1 + 8*3
	connBodySize      = 1 + 8 + 2
	maxStringLen      = int(^uint16(0))
)

var (
	ErrShortPayload       = errors.New("codec: payload too short")
	ErrUnsupportedVersion = errors.New("codec: unsupported version")
	ErrUnknownMessageKind = errors.New("codec: unknown message kind")
	ErrStringTooLong      = errors.New("codec: string too long")
)

// AppendMessage serializes msg and appends it to dst.
//
// Layout (little endian):
//
//	[0] version [1] kind [2:4] source [4:6] symbol length, kind-specific body, symbol bytes
func AppendMessage(dst []byte, msg schema.Message) ([]byte, error) {
	symbol := msg.Symbol()
	if len(symbol) > maxStringLen {
		return dst, ErrStringTooLong
	}

	var source uint16
	switch msg.Kind {
	case schema.MessageEvent:
		source = msg.Event.Source
	case schema.MessageGap:
		source = msg.Gap.Source
	case schema.MessageConnectivity:
		source = msg.Connectivity.Source
		if len(msg.Connectivity.AdapterID) > maxStringLen {
			return dst, ErrStringTooLong
		}
	default:
		return dst, ErrUnknownMessageKind
	}

	dst = append(dst, schema.SchemaVersion, byte(msg.Kind))
	dst = binary.LittleEndian.AppendUint16(dst, source)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(symbol)))

	switch msg.Kind {
	case schema.MessageEvent:
		ev := msg.Event
		dst = append(dst, byte(ev.Kind))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(ev.Price))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(ev.Size))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(ev.TsEvent))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(ev.TsRecv))
		dst = binary.LittleEndian.AppendUint64(dst, ev.Seq)
	case schema.MessageGap:
		gap := msg.Gap
		dst = append(dst, byte(gap.Reason))
		dst = binary.LittleEndian.AppendUint64(dst, gap.Expected)
		dst = binary.LittleEndian.AppendUint64(dst, gap.Got)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(gap.Ts))
	case schema.MessageConnectivity:
		c := msg.Connectivity
		dst = append(dst, byte(c.State))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(c.Ts))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(c.AdapterID)))
		dst = append(dst, c.AdapterID...)
	}
	return append(dst, symbol...), nil
}

// DecodeMessage parses a payload produced by AppendMessage.
func DecodeMessage(src []byte) (schema.Message, error) {
	if len(src) < 2+messagePrefixSize {
		return schema.Message{}, ErrShortPayload
	}
	if src[0] != schema.SchemaVersion {
		return schema.Message{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, src[0])
	}
	kind := schema.MessageKind(src[1])
	source := binary.LittleEndian.Uint16(src[2:4])
	symbolLen := int(binary.LittleEndian.Uint16(src[4:6]))
	body := src[6:]

	readSymbol := func(rest []byte) (string, error) {
		if len(rest) < symbolLen {
			return "", ErrShortPayload
		}
		return string(rest[:symbolLen]), nil
	}

	switch kind {
	case schema.MessageEvent:
		if len(body) < eventBodySize {
			return schema.Message{}, ErrShortPayload
		}
		symbol, err := readSymbol(body[eventBodySize:])
		if err != nil {
			return schema.Message{}, err
		}
		return schema.EventMessage(schema.MarketEvent{
			Symbol:  symbol,
			Kind:    schema.EventKind(body[0]),
			Price:   schema.Price(int64(binary.LittleEndian.Uint64(body[1:9]))),
			Size:    schema.Quantity(int64(binary.LittleEndian.Uint64(body[9:17]))),
			TsEvent: int64(binary.LittleEndian.Uint64(body[17:25])),
			TsRecv:  int64(binary.LittleEndian.Uint64(body[25:33])),
			Seq:     binary.LittleEndian.Uint64(body[33:41]),
			Source:  source,
		}), nil
	case schema.MessageGap:
		if len(body) < gapBodySize {
			return schema.Message{}, ErrShortPayload
		}
		symbol, err := readSymbol(body[gapBodySize:])
		if err != nil {
			return schema.Message{}, err
		}
		return schema.GapMessage(schema.Gap{
			Symbol:   symbol,
			Reason:   schema.GapReason(body[0]),
			Expected: binary.LittleEndian.Uint64(body[1:9]),
			Got:      binary.LittleEndian.Uint64(body[9:17]),
			Ts:       int64(binary.LittleEndian.Uint64(body[17:25])),
			Source:   source,
		}), nil
	case schema.MessageConnectivity:
		if len(body) < connBodySize {
			return schema.Message{}, ErrShortPayload
		}
		adapterLen := int(binary.LittleEndian.Uint16(body[9:11]))
		rest := body[connBodySize:]
		if len(rest) < adapterLen {
			return schema.Message{}, ErrShortPayload
		}
		symbol, err := readSymbol(rest[adapterLen:])
		if err != nil {
			return schema.Message{}, err
		}
		return schema.ConnectivityMessage(schema.Connectivity{
			AdapterID: string(rest[:adapterLen]),
			Symbol:    symbol,
			State:     schema.ConnState(body[0]),
			Ts:        int64(binary.LittleEndian.Uint64(body[1:9])),
			Source:    source,
		}), nil
	default:
		return schema.Message{}, fmt.Errorf("%w: %d", ErrUnknownMessageKind, kind)
	}
}
