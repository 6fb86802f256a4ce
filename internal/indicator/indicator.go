package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

// Indicator is a rolling value derived from a price stream.
// Update is O(1) and returns the current value.
type Indicator interface {
	Name() string
	// Window is the number of consecutive samples needed before Ready.
	Window() int
	Update(price schema.Price) float64
	Value() float64
	Ready() bool
	Samples() int
	Reset()
}

// Bander is implemented by indicators publishing an envelope.
type Bander interface {
	Bands() (upper, lower float64)
}

// Signaler is implemented by indicators publishing a trade signal.
type Signaler interface {
	Signal() Signal
}

// Signal is a crossover recommendation.
type Signal uint8

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "Buy"
	case SignalSell:
		return "Sell"
	default:
		return "Hold"
	}
}

// Kind enumerates the indicator variants.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSMA
	KindEMA
	KindRSI
	KindBollinger
	KindCrossover
	KindVolatility
)

func (k Kind) String() string {
	switch k {
	case KindSMA:
		return "sma"
	case KindEMA:
		return "ema"
	case KindRSI:
		return "rsi"
	case KindBollinger:
		return "bollinger"
	case KindCrossover:
		return "crossover"
	case KindVolatility:
		return "volatility"
	default:
		return "unknown"
	}
}

func parseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sma":
		return KindSMA
	case "ema":
		return KindEMA
	case "rsi":
		return KindRSI
	case "bollinger", "boll", "bb":
		return KindBollinger
	case "crossover", "xover":
		return KindCrossover
	case "volatility", "vol":
		return KindVolatility
	default:
		return KindUnknown
	}
}

const defaultBollingerK = 2.0

// Spec configures one indicator.
//
// Text form: "sma:20", "ema:20", "rsi:14", "bollinger:20:2", "crossover:10:30", "volatility:20".
type Spec struct {
	Kind   Kind
	Window int
	// Long is the long window of a crossover.
	Long int
	// K is the band width of Bollinger bands in standard deviations.
	K float64
}

// ParseSpec parses the text form of a Spec.
func ParseSpec(s string) (Spec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	spec := Spec{Kind: parseKind(parts[0])}
	if spec.Kind == KindUnknown {
		return Spec{}, fmt.Errorf("unknown indicator %q", s)
	}
	if len(parts) < 2 {
		return Spec{}, fmt.Errorf("indicator %q has no window", s)
	}
	window, err := strconv.Atoi(parts[1])
	if err != nil {
		return Spec{}, fmt.Errorf("indicator %q: window: %w", s, err)
	}
	spec.Window = window

	switch spec.Kind {
	case KindBollinger:
		spec.K = defaultBollingerK
		if len(parts) > 2 {
			k, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return Spec{}, fmt.Errorf("indicator %q: k: %w", s, err)
			}
			spec.K = k
		}
	case KindCrossover:
		if len(parts) < 3 {
			return Spec{}, fmt.Errorf("indicator %q needs short and long windows", s)
		}
		long, err := strconv.Atoi(parts[2])
		if err != nil {
			return Spec{}, fmt.Errorf("indicator %q: long window: %w", s, err)
		}
		spec.Long = long
	}
	return spec, spec.Validate()
}

// MustParseSpecs parses a list of specs and panics on error. Intended for tests and defaults.
func MustParseSpecs(specs ...string) []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		spec, err := ParseSpec(s)
		if err != nil {
			panic(err)
		}
		out = append(out, spec)
	}
	return out
}

// Validate checks the spec bounds.
func (s Spec) Validate() error {
	if s.Window <= 0 {
		return fmt.Errorf("invalid indicator spec %s: window must be > 0", s.Kind)
	}
	switch s.Kind {
	case KindSMA, KindEMA, KindRSI, KindVolatility:
	case KindBollinger:
		if s.K <= 0 {
			return fmt.Errorf("invalid indicator spec %s: k must be > 0", s.Kind)
		}
	case KindCrossover:
		if s.Long <= s.Window {
			return fmt.Errorf("invalid indicator spec %s: long window must be > short window", s.Kind)
		}
	default:
		return fmt.Errorf("invalid indicator spec: unknown kind %d", s.Kind)
	}
	return nil
}

// Name returns the display name, for example "SMA-20".
func (s Spec) Name() string {
	switch s.Kind {
	case KindCrossover:
		return fmt.Sprintf("XOVER-%d-%d", s.Window, s.Long)
	case KindBollinger:
		return fmt.Sprintf("BOLL-%d", s.Window)
	case KindVolatility:
		return fmt.Sprintf("VOL-%d", s.Window)
	default:
		return fmt.Sprintf("%s-%d", strings.ToUpper(s.Kind.String()), s.Window)
	}
}

func (s Spec) String() string {
	switch s.Kind {
	case KindCrossover:
		return fmt.Sprintf("%s:%d:%d", s.Kind, s.Window, s.Long)
	case KindBollinger:
		return fmt.Sprintf("%s:%d:%s", s.Kind, s.Window, strconv.FormatFloat(s.K, 'f', -1, 64))
	default:
		return fmt.Sprintf("%s:%d", s.Kind, s.Window)
	}
}

// New builds the indicator described by spec for prices with the given scale.
func New(spec Spec, scale schema.Scale) (Indicator, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case KindSMA:
		return NewSMA(spec.Window, scale), nil
	case KindEMA:
		return NewEMA(spec.Window, scale), nil
	case KindRSI:
		return NewRSI(spec.Window, scale), nil
	case KindBollinger:
		return NewBollinger(spec.Window, spec.K, scale), nil
	case KindCrossover:
		return NewCrossover(spec.Window, spec.Long, scale), nil
	case KindVolatility:
		return NewVolatility(spec.Window, scale), nil
	default:
		return nil, fmt.Errorf("unknown indicator kind %d", spec.Kind)
	}
}
