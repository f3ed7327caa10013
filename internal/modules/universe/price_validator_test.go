package universe

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPriceValidator_ValidatePrice(t *testing.T) {
	validator := NewPriceValidator(zerolog.Nop())
	history := []DailyPrice{{Date: "2025-01-14", Close: 50}, {Date: "2025-01-13", Close: 48}}

	tests := []struct {
		name    string
		close   float64
		context []DailyPrice
		want    bool
		reason  string
	}{
		{name: "valid without context", close: 52, want: true},
		{name: "valid with context", close: 51, context: history, want: true},
		{name: "zero close", close: 0, want: false, reason: "non_positive"},
		{name: "negative close", close: -3, want: false, reason: "non_positive"},
		{name: "nan close", close: math.NaN(), want: false, reason: "not_finite"},
		{name: "spike", close: 600, context: history, want: false, reason: "spike_detected"},
		{name: "crash", close: 4, context: history, want: false, reason: "crash_detected"},
		{
			name:    "too high relative to average",
			close:   400,
			context: []DailyPrice{{Close: 100}, {Close: 10}, {Close: 10}, {Close: 10}},
			want:    false,
			reason:  "price_too_high",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := validator.ValidatePrice(DailyPrice{Date: "2025-01-15", Close: tt.close}, tt.context)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPriceValidator_Clean(t *testing.T) {
	validator := NewPriceValidator(zerolog.Nop())
	input := []DailyPrice{
		{Date: "2025-01-03", Close: 11},
		{Date: "2025-01-01", Close: 10},
		{Date: "2025-01-02", Close: 500}, // spike
		{Date: "2025-01-04", Close: 0},
		{Date: "2025-01-03", Close: 12}, // duplicate, last wins
		{Date: "2025-01-05", Close: 12.5},
	}
	original := append([]DailyPrice(nil), input...)

	accepted, rejected := validator.Clean("AAA", input)

	assert.Equal(t, []DailyPrice{
		{Date: "2025-01-01", Close: 10},
		{Date: "2025-01-03", Close: 12},
		{Date: "2025-01-05", Close: 12.5},
	}, accepted)
	assert.Equal(t, []Rejection{
		{Symbol: "AAA", Date: "2025-01-02", Close: 500, Reason: "spike_detected"},
		{Symbol: "AAA", Date: "2025-01-04", Close: 0, Reason: "non_positive"},
	}, rejected)
	assert.Equal(t, original, input)
}
