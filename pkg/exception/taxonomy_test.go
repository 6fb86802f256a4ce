package exception

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyMatchesSentinels(t *testing.T) {
	testCases := []struct {
		desc     string
		err      error
		sentinel error
	}{
		{desc: "transient", err: &TransientFeedError{AdapterID: "sim", Attempt: 2, Err: io.EOF}, sentinel: ErrTransientFeed},
		{desc: "gap", err: &GapError{Symbol: "ABC", Expected: 4, Got: 7}, sentinel: ErrGap},
		{desc: "malformed", err: Malformed("ws", "bad price", nil), sentinel: ErrMalformedEvent},
		{desc: "overflow", err: &OverflowError{Topic: "ABC", Dropped: 1}, sentinel: ErrOverflow},
		{desc: "capacity", err: &CapacityExceededError{Scope: "portfolio", Key: "p1", Limit: 2, Requested: 3}, sentinel: ErrCapacityExceeded},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			require.ErrorIs(t, tc.err, tc.sentinel)
			assert.NotEmpty(t, tc.err.Error())
		})
	}
}

func TestTransientFeedErrorUnwraps(t *testing.T) {
	err := &TransientFeedError{AdapterID: "ws", Err: io.ErrUnexpectedEOF}
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "adapter=ws")
}

func TestCapacityExceededMessage(t *testing.T) {
	err := &CapacityExceededError{Scope: "watchlist", Key: "tech", Limit: 200, Requested: 250}
	assert.Equal(t, "watchlist tech needs 250 symbols, the limit is 200", err.Error())

	var target *CapacityExceededError
	require.True(t, errors.As(error(err), &target))
	assert.Equal(t, 200, target.Limit)
}
