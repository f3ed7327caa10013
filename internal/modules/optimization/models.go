package optimization

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// PricePoint is one adjusted close observation.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Close float64   `json:"close" msgpack:"close"`
}

// Asset is a ticker with its sector classification and chronologically ordered prices.
// RiskScore is the provider's overall risk rating (0 when unknown).
type Asset struct {
	Ticker    string       `json:"ticker" msgpack:"ticker"`
	Sector    string       `json:"sector" msgpack:"sector"`
	RiskScore float64      `json:"risk_score,omitempty" msgpack:"risk_score,omitempty"`
	Prices    []PricePoint `json:"prices" msgpack:"prices"`
}

// Strategy identifies an allocation objective.
// The set is closed: add a variant here and a case in MVOptimizer.Optimize.
type Strategy int

const (
	MinimumVariance Strategy = iota + 1
	MaximumSharpe
	EqualWeight
)

// AllStrategies lists every supported strategy in declaration order.
var AllStrategies = []Strategy{MinimumVariance, MaximumSharpe, EqualWeight}

func (s Strategy) String() string {
	switch s {
	case MinimumVariance:
		return "min_variance"
	case MaximumSharpe:
		return "max_sharpe"
	case EqualWeight:
		return "equal_weight"
	default:
		return "strategy(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is one of the declared variants.
func (s Strategy) Valid() bool {
	return s >= MinimumVariance && s <= EqualWeight
}

// ParseStrategy maps an external strategy name to its variant.
// Only I/O boundaries (HTTP, CLI) should need this.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "min_variance", "minimum_variance", "min_volatility":
		return MinimumVariance, nil
	case "max_sharpe", "maximum_sharpe":
		return MaximumSharpe, nil
	case "equal_weight", "equal":
		return EqualWeight, nil
	default:
		return 0, fmt.Errorf("unknown strategy: %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// EncodeMsgpack writes the strategy as its name.
func (s Strategy) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(s.String())
}

// DecodeMsgpack reads a strategy name.
func (s *Strategy) DecodeMsgpack(dec *msgpack.Decoder) error {
	name, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return s.UnmarshalText([]byte(name))
}

// undefinedLabel is the marker written in place of a metric that has no numeric value.
const undefinedLabel = "undefined"

// Metric is a ratio that may be undefined (e.g. a Sharpe ratio at zero volatility).
// The zero value is Undefined.
type Metric struct {
	value   float64
	defined bool
}

// Undefined is the metric without a numeric value.
var Undefined = Metric{}

// DefinedMetric wraps a numeric value. NaN and infinities become Undefined.
func DefinedMetric(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Undefined
	}
	return Metric{value: v, defined: true}
}

// Value returns the numeric value and whether it is defined.
func (m Metric) Value() (float64, bool) {
	return m.value, m.defined
}

// IsDefined reports whether the metric carries a number.
func (m Metric) IsDefined() bool {
	return m.defined
}

func (m Metric) String() string {
	if !m.defined {
		return undefinedLabel
	}
	return strconv.FormatFloat(m.value, 'f', 4, 64)
}

// MarshalJSON writes the number, or the string "undefined".
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.defined {
		return json.Marshal(undefinedLabel)
	}
	return json.Marshal(m.value)
}

// UnmarshalJSON accepts a number, null or "undefined".
func (m *Metric) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `"`+undefinedLabel+`"` {
		*m = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid metric %s: %w", trimmed, err)
	}
	*m = DefinedMetric(v)
	return nil
}

// EncodeMsgpack writes the number, or the string "undefined".
func (m Metric) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !m.defined {
		return enc.EncodeString(undefinedLabel)
	}
	return enc.EncodeFloat64(m.value)
}

// DecodeMsgpack reads a number or the undefined marker.
func (m *Metric) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*m = Undefined
	case string:
		if val != undefinedLabel {
			return fmt.Errorf("invalid metric %q", val)
		}
		*m = Undefined
	case float64:
		*m = DefinedMetric(val)
	case float32:
		*m = DefinedMetric(float64(val))
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		f, _ := strconv.ParseFloat(fmt.Sprint(val), 64)
		*m = DefinedMetric(f)
	default:
		return fmt.Errorf("invalid metric type %T", v)
	}
	return nil
}

// SolverInfo records how a strategy's weights were found.
type SolverInfo struct {
	Solver     string  `json:"solver" msgpack:"solver"`
	Iterations int     `json:"iterations" msgpack:"iterations"`
	Restarts   int     `json:"restarts,omitempty" msgpack:"restarts,omitempty"`
	Objective  float64 `json:"objective" msgpack:"objective"`
}

// Portfolio is one strategy's allocation. Weights are aligned with Tickers.
// A Portfolio is never modified after it is produced.
type Portfolio struct {
	Strategy       Strategy   `json:"strategy" msgpack:"strategy"`
	Tickers        []string   `json:"tickers" msgpack:"tickers"`
	Weights        []float64  `json:"weights" msgpack:"weights"`
	ExpectedReturn float64    `json:"expected_return" msgpack:"expected_return"`
	Volatility     float64    `json:"volatility" msgpack:"volatility"`
	SharpeRatio    Metric     `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	Solver         SolverInfo `json:"solver" msgpack:"solver"`
}

// Weight returns the weight of ticker, or 0 when it is not part of the allocation.
func (p Portfolio) Weight(ticker string) float64 {
	for i, t := range p.Tickers {
		if t == ticker {
			return p.Weights[i]
		}
	}
	return 0
}

// WeightMap returns the allocation keyed by ticker.
func (p Portfolio) WeightMap() map[string]float64 {
	weights := make(map[string]float64, len(p.Tickers))
	for i, t := range p.Tickers {
		weights[t] = p.Weights[i]
	}
	return weights
}

func (p Portfolio) clone() Portfolio {
	c := p
	c.Tickers = append([]string(nil), p.Tickers...)
	c.Weights = append([]float64(nil), p.Weights...)
	return c
}

// Bounds is a weight interval as a fraction of total capital.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Preferences are the raw user selections for one run.
type Preferences struct {
	ExcludedSectors []string          `json:"excluded_sectors,omitempty"`
	ForceInclude    []string          `json:"force_include,omitempty"`
	MinWeight       float64           `json:"min_weight"`
	MaxWeight       float64           `json:"max_weight"` // 0 means 1 (no cap)
	Overrides       map[string]Bounds `json:"overrides,omitempty"`
	RiskTolerance   float64           `json:"risk_tolerance,omitempty"` // 0 disables the filter
	AllowShort      bool              `json:"allow_short,omitempty"`
}

// DroppedAsset records why an asset did not reach the optimizer.
type DroppedAsset struct {
	Ticker string `json:"ticker" msgpack:"ticker"`
	Reason string `json:"reason" msgpack:"reason"`
}

// Drop reasons
const (
	DropExcludedSector      = "excluded_sector"
	DropRiskTolerance       = "risk_tolerance"
	DropInsufficientHistory = "insufficient_history"
	DropPriceGap            = "price_gap"
	DropNoOverlap           = "no_overlap"
)
