package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyABC(t *testing.T) {
	products := []ProductRevenue{
		{ProductID: "p-big", Revenue: 700},
		{ProductID: "p-mid", Revenue: 200},
		{ProductID: "p-small", Revenue: 60},
		{ProductID: "p-tiny", Revenue: 40},
	}

	classes := ClassifyABC(products)
	// Cumulative shares: 0.70, 0.90, 0.96, 1.00.
	assert.Equal(t, "A", classes["p-big"])
	assert.Equal(t, "B", classes["p-mid"])
	assert.Equal(t, "C", classes["p-small"])
	assert.Equal(t, "C", classes["p-tiny"])
}

func TestClassifyABCDominantProductIsAlwaysA(t *testing.T) {
	classes := ClassifyABC([]ProductRevenue{
		{ProductID: "p-dominant", Revenue: 990},
		{ProductID: "p-rest", Revenue: 10},
	})
	assert.Equal(t, "A", classes["p-dominant"])
	assert.Equal(t, "C", classes["p-rest"])
}

func TestClassifyABCDegenerateInputs(t *testing.T) {
	assert.Empty(t, ClassifyABC(nil))

	classes := ClassifyABC([]ProductRevenue{
		{ProductID: "p-1", Revenue: 0},
		{ProductID: "p-2", Revenue: 0},
	})
	assert.Equal(t, "C", classes["p-1"])
	assert.Equal(t, "C", classes["p-2"])
}

func TestClassifyABCDeterministicOnTies(t *testing.T) {
	products := []ProductRevenue{
		{ProductID: "p-b", Revenue: 50},
		{ProductID: "p-a", Revenue: 50},
	}
	first := ClassifyABC(products)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ClassifyABC(products))
	}
}

func TestClassifyXYZ(t *testing.T) {
	tests := []struct {
		name   string
		demand []float64
		want   string
	}{
		{"steady", []float64{100, 102, 98, 101, 99}, "X"},
		{"swinging", []float64{100, 10, 150, 40, 120}, "Y"},
		{"erratic", []float64{0, 0, 0, 500, 0, 0}, "Z"},
		{"empty", nil, "Z"},
		{"zero mean", []float64{0, 0, 0}, "Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyXYZ(tt.demand))
		})
	}
}

func TestCoefficientOfVariation(t *testing.T) {
	cv, ok := CoefficientOfVariation([]float64{10, 10, 10})
	require.True(t, ok)
	assert.Zero(t, cv)

	_, ok = CoefficientOfVariation(nil)
	assert.False(t, ok)
}

func TestSafetyStock(t *testing.T) {
	// Z=1.65, LT=4 days, sigmaLT=1, D=50/day, sigmaD=10.
	got := SafetyStock(SafetyStockInput{
		ServiceLevelZ:   1.65,
		LeadTimeDays:    4,
		LeadTimeStdDev:  1,
		DailyDemandMean: 50,
		DailyDemandStd:  10,
	})
	want := 1.65 * math.Sqrt(4*100+2500)
	assert.InDelta(t, want, got, 1e-9)
}

func TestSafetyStockDegenerate(t *testing.T) {
	assert.Zero(t, SafetyStock(SafetyStockInput{ServiceLevelZ: 1.65}))
	assert.Zero(t, SafetyStock(SafetyStockInput{}))
}

func TestMovingAverageForecast(t *testing.T) {
	series := []float64{10, 20, 30, 40}

	got := MovingAverageForecast(series, 2, 3)
	assert.Equal(t, []float64{35, 35, 35}, got)

	// Window wider than the series uses the whole series.
	got = MovingAverageForecast(series, 10, 2)
	assert.Equal(t, []float64{25, 25}, got)

	assert.Equal(t, []float64{0, 0}, MovingAverageForecast(nil, 3, 2))
	assert.Nil(t, MovingAverageForecast(series, 2, 0))
}
