package schema

import (
	"fmt"
	"iter"
	"strings"

	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// Scale is the number of decimal places of a scaled integer: 4 means 1e4 units per whole.
type Scale int32

// MaxScale is the largest supported scale.
const MaxScale Scale = 18

var pow10 = [MaxScale + 1]float64{1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10, 1e11, 1e12, 1e13, 1e14, 1e15, 1e16, 1e17, 1e18}

// Factor returns 10^scale, clamped to [0, MaxScale].
func (s Scale) Factor() float64 {
	return pow10[min(max(s, 0), MaxScale)]
}

// ScaleSpec is the fixed-point layout of a symbol's prices and sizes.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale" mapstructure:"price_scale"`
	QuantityScale Scale `json:"quantityScale" mapstructure:"quantity_scale"`
}

func (s ScaleSpec) Validate() error {
	for _, f := range []struct {
		name  string
		scale Scale
	}{{"price", s.PriceScale}, {"quantity", s.QuantityScale}} {
		if f.scale < 0 || f.scale > MaxScale {
			return fmt.Errorf("%w: %s scale %d outside [0, %d]", exception.ErrInvalidArgument, f.name, f.scale, MaxScale)
		}
	}
	return nil
}

type (
	VenueID  uint16
	SymbolID uint32
)

// Venue is a listing exchange.
type Venue struct {
	ID   VenueID `json:"id"`
	Name string  `json:"name"`
}

// Symbol is a tracked instrument and its fixed-point layout.
type Symbol struct {
	ID      SymbolID  `json:"id"`
	VenueID VenueID   `json:"venueId"`
	Name    string    `json:"name"`
	Scale   ScaleSpec `json:"scale"`
}

// Registry is the set of venues and symbols the engine accepts. It is filled
// at startup and read concurrently afterwards without locking.
type Registry struct {
	venues  []Venue
	symbols []Symbol
	byVenue map[string]int
	byName  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byVenue: make(map[string]int),
		byName:  make(map[string]int),
	}
}

// AddVenue registers a venue. A duplicate name returns the existing ID and an error.
func (r *Registry) AddVenue(name string) (VenueID, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: venue name is empty", exception.ErrInvalidArgument)
	}
	if i, ok := r.byVenue[name]; ok {
		return r.venues[i].ID, fmt.Errorf("%w: venue %s registered twice", exception.ErrInvalidArgument, name)
	}
	v := Venue{ID: VenueID(len(r.venues) + 1), Name: name}
	r.byVenue[name] = len(r.venues)
	r.venues = append(r.venues, v)
	return v.ID, nil
}

// AddSymbol registers a symbol listed on venue. A duplicate name returns the
// existing ID and an error.
func (r *Registry) AddSymbol(name string, venue VenueID, scale ScaleSpec) (SymbolID, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("%w: symbol name is empty", exception.ErrInvalidArgument)
	}
	if venue == 0 || int(venue) > len(r.venues) {
		return 0, fmt.Errorf("%w: symbol %s lists on unknown venue %d", exception.ErrInvalidArgument, name, venue)
	}
	if err := scale.Validate(); err != nil {
		return 0, fmt.Errorf("symbol %s: %w", name, err)
	}
	if i, ok := r.byName[name]; ok {
		return r.symbols[i].ID, fmt.Errorf("%w: symbol %s registered twice", exception.ErrInvalidArgument, name)
	}
	s := Symbol{ID: SymbolID(len(r.symbols) + 1), VenueID: venue, Name: name, Scale: scale}
	r.byName[name] = len(r.symbols)
	r.symbols = append(r.symbols, s)
	return s.ID, nil
}

func (r *Registry) VenueByName(name string) (Venue, bool) {
	i, ok := r.byVenue[name]
	if !ok {
		return Venue{}, false
	}
	return r.venues[i], true
}

func (r *Registry) SymbolByName(name string) (Symbol, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Symbol{}, false
	}
	return r.symbols[i], true
}

// Len is the number of registered symbols.
func (r *Registry) Len() int { return len(r.symbols) }

// Symbols iterates symbols in registration order.
func (r *Registry) Symbols() iter.Seq[Symbol] {
	return func(yield func(Symbol) bool) {
		for _, s := range r.symbols {
			if !yield(s) {
				return
			}
		}
	}
}

// SymbolNames returns every symbol name in registration order.
func (r *Registry) SymbolNames() []string {
	names := make([]string, len(r.symbols))
	for i, s := range r.symbols {
		names[i] = s.Name
	}
	return names
}
