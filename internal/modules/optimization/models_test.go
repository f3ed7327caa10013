package optimization

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected Strategy
		wantErr  bool
	}{
		{input: "min_variance", expected: MinimumVariance},
		{input: "MIN_VOLATILITY", expected: MinimumVariance},
		{input: "max_sharpe", expected: MaximumSharpe},
		{input: " equal_weight ", expected: EqualWeight},
		{input: "efficient_return", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := ParseStrategy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, s)
			assert.True(t, s.Valid())
		})
	}
}

func TestStrategy_String(t *testing.T) {
	assert.Equal(t, "min_variance", MinimumVariance.String())
	assert.Equal(t, "max_sharpe", MaximumSharpe.String())
	assert.Equal(t, "equal_weight", EqualWeight.String())
	assert.Equal(t, "strategy(0)", Strategy(0).String())
	assert.False(t, Strategy(0).Valid())
}

func TestMetric_JSON(t *testing.T) {
	data, err := json.Marshal(Undefined)
	require.NoError(t, err)
	assert.Equal(t, `"undefined"`, string(data))

	data, err = json.Marshal(DefinedMetric(1.25))
	require.NoError(t, err)
	assert.Equal(t, `1.25`, string(data))

	var m Metric
	require.NoError(t, json.Unmarshal([]byte(`0.5`), &m))
	v, ok := m.Value()
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	require.NoError(t, json.Unmarshal([]byte(`"undefined"`), &m))
	assert.False(t, m.IsDefined())

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &m))
}

func TestMetric_Msgpack(t *testing.T) {
	for _, m := range []Metric{Undefined, DefinedMetric(-0.75)} {
		data, err := msgpack.Marshal(m)
		require.NoError(t, err)

		var decoded Metric
		require.NoError(t, msgpack.Unmarshal(data, &decoded))
		assert.Equal(t, m, decoded)
	}
}

func TestDefinedMetric_NonFinite(t *testing.T) {
	var zero float64
	assert.False(t, DefinedMetric(1/zero).IsDefined())
	assert.False(t, DefinedMetric(zero/zero).IsDefined())
	assert.Equal(t, "undefined", Undefined.String())
	assert.Equal(t, "1.5000", DefinedMetric(1.5).String())
}

func TestPortfolio_JSONAndMsgpack(t *testing.T) {
	p := Portfolio{
		Strategy:       MaximumSharpe,
		Tickers:        []string{"A", "B"},
		Weights:        []float64{0.25, 0.75},
		ExpectedReturn: 0.08,
		Volatility:     0.1,
		SharpeRatio:    DefinedMetric(0.7),
		Solver:         SolverInfo{Solver: "projected_gradient", Iterations: 12, Restarts: 7, Objective: 0.7},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"strategy":"max_sharpe"`)
	assert.Contains(t, string(data), `"sharpe_ratio":0.7`)

	var fromJSON Portfolio
	require.NoError(t, json.Unmarshal(data, &fromJSON))
	assert.Equal(t, p, fromJSON)

	packed, err := msgpack.Marshal(&p)
	require.NoError(t, err)
	var fromMsgpack Portfolio
	require.NoError(t, msgpack.Unmarshal(packed, &fromMsgpack))
	assert.Equal(t, p, fromMsgpack)
}

func TestPortfolio_WeightLookup(t *testing.T) {
	p := Portfolio{Tickers: []string{"A", "B"}, Weights: []float64{0.4, 0.6}}
	assert.Equal(t, 0.6, p.Weight("B"))
	assert.Equal(t, 0.0, p.Weight("Z"))
	assert.Equal(t, map[string]float64{"A": 0.4, "B": 0.6}, p.WeightMap())

	c := p.clone()
	c.Weights[0] = 1
	assert.Equal(t, 0.4, p.Weights[0])
}
