/*
Core turns canonical market messages into published symbol, portfolio and watchlist views.

# Module
  - ingress bus: receives events, gaps and connectivity notices from feed adapters
  - lanes: one goroutine per shard, the only writer of the symbol states it owns
  - indicator sets: updated by the owning lane, re-seeded after a discontinuity
  - valuation engine: re-values the portfolios and watchlists holding a symbol
  - snapshot store: last published view per key, ordered by version

# Source
 1. feed adapters (websocket, kafka, synthetic)
 2. WAL replay on startup

# Produce
  - updates on the update bus, keyed by symbol, portfolio:<id> or watchlist:<id>

# Sharded
  - fnv32a(symbol) % lanes
*/
package core
