package exception

import "errors"

// Valuation and snapshot errors
var (
	ErrUnknownPortfolio   = errors.New("valuation: portfolio not found")
	ErrUnknownWatchlist   = errors.New("valuation: watchlist not found")
	ErrDuplicatePortfolio = errors.New("valuation: portfolio already exists")
	ErrDuplicateWatchlist = errors.New("valuation: watchlist already exists")
	ErrInvalidPosition    = errors.New("valuation: invalid position")
	ErrStaleWrite         = errors.New("snapshot: write older than stored sequence")
	ErrSnapshotNotFound   = errors.New("snapshot: key not found")
)
