package codec

import (
	"encoding/json"
	"strconv"
)

// Tick is the JSON wire format shared by the websocket and kafka feed sources
// and the synthetic generator.
type Tick struct {
	Symbol  string `json:"s"`
	Type    string `json:"t"`
	Price   string `json:"p"`
	Size    string `json:"q,omitempty"`
	Seq     uint64 `json:"n"`
	TsEvent int64  `json:"ts,omitempty"`

	// TsRecv is stamped locally on receipt and never sent.
	TsRecv int64 `json:"-"`
}

// DecodeTick parses one JSON tick.
func DecodeTick(data []byte) (Tick, error) {
	var t Tick
	if err := json.Unmarshal(data, &t); err != nil {
		return Tick{}, err
	}
	return t, nil
}

// EncodeTick serializes one tick.
func EncodeTick(t Tick) ([]byte, error) {
	return json.Marshal(t)
}

// FormatPrice renders a float price with a fixed number of decimals for a Tick.
func FormatPrice(price float64, decimals int) string {
	return strconv.FormatFloat(price, 'f', decimals, 64)
}
