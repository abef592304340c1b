package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		fallback float64
		want     float64
	}{
		{"finite passes through", 42.5, 0, 42.5},
		{"NaN falls back", math.NaN(), 0, 0},
		{"+Inf falls back", math.Inf(1), 7, 7},
		{"-Inf falls back", math.Inf(-1), -1, -1},
		{"zero is finite", 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.value, tt.fallback))
		})
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.2))
	assert.Equal(t, 1.0, Clamp01(1.7))
	assert.Equal(t, 0.4, Clamp01(0.4))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
	assert.Equal(t, 5.0, Clamp(9, 1, 5))
}

func TestMeanAndStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.Equal(t, 5.0, Mean(values))
	assert.InDelta(t, 2.0, StdDev(values), 1e-9)
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{3}))
	assert.InDelta(t, 0.4, CoefficientOfVariation(values), 1e-9)
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.Equal(t, []float64{2, 3, 4}, got)
	assert.Nil(t, SMA([]float64{1, 2}, 3))
}

func TestTailLastMinMax(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5}

	assert.Equal(t, []float64{1, 5}, Tail(values, 2))
	assert.Equal(t, values, Tail(values, 10))
	assert.Equal(t, 5.0, Last(values))
	assert.Equal(t, 5.0, Max(values))
	assert.Equal(t, 1.0, Min(values))
}
