package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		desc string
		msg  schema.Message
	}{
		{
			desc: "event",
			msg: schema.EventMessage(schema.MarketEvent{
				Symbol: "AAPL", Kind: schema.EventTrade, Price: 1502500, Size: 10,
				TsEvent: 1700000000123, TsRecv: 1700000000456, Seq: 42, Source: 3,
			}),
		},
		{
			desc: "gap",
			msg: schema.GapMessage(schema.Gap{
				Symbol: "ABC", Reason: schema.GapSequence, Expected: 4, Got: 7, Ts: 99, Source: 1,
			}),
		},
		{
			desc: "connectivity",
			msg: schema.ConnectivityMessage(schema.Connectivity{
				AdapterID: "sim-1", Symbol: "MSFT", State: schema.ConnDegraded, Ts: 5, Source: 2,
			}),
		},
		{
			desc: "adapter wide connectivity",
			msg:  schema.ConnectivityMessage(schema.Connectivity{AdapterID: "ws", State: schema.ConnLive}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			encoded, err := AppendMessage(nil, tc.msg)
			require.NoError(t, err)
			decoded, err := DecodeMessage(encoded)
			require.NoError(t, err)
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestDecodeMessageRejectsTruncated(t *testing.T) {
	encoded, err := AppendMessage(nil, schema.EventMessage(schema.MarketEvent{Symbol: "AAPL", Kind: schema.EventQuote, Price: 1, Seq: 1}))
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		if _, err := DecodeMessage(encoded[:n]); err == nil {
			t.Fatalf("decode of %d/%d bytes succeeded", n, len(encoded))
		}
	}
}

func TestAppendMessageUnknownKind(t *testing.T) {
	_, err := AppendMessage(nil, schema.Message{})
	require.ErrorIs(t, err, ErrUnknownMessageKind)
}

func TestTickJSON(t *testing.T) {
	data, err := EncodeTick(Tick{Symbol: "AAPL", Type: "trade", Price: "150.25", Size: "10", Seq: 9, TsEvent: 1, TsRecv: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"AAPL","t":"trade","p":"150.25","q":"10","n":9,"ts":1}`, string(data))

	tick, err := DecodeTick(data)
	require.NoError(t, err)
	assert.Equal(t, "150.25", tick.Price)
	assert.Zero(t, tick.TsRecv)

	_, err = DecodeTick([]byte("{not json"))
	assert.Error(t, err)
}
