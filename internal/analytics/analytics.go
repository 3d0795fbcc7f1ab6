// Package analytics holds the classification and planning math: ABC revenue
// Pareto, XYZ demand variability, safety stock sizing, and moving-average
// forecasting. Pure functions over plain series; callers assemble the data.
package analytics

import (
	"math"
	"sort"
)

// ABC class thresholds on cumulative revenue share.
const (
	abcClassACutoff = 0.80
	abcClassBCutoff = 0.95
)

// XYZ class thresholds on the coefficient of variation.
const (
	xyzClassXCutoff = 0.5
	xyzClassYCutoff = 1.0
)

// ProductRevenue is the input to the ABC classification.
type ProductRevenue struct {
	ProductID string
	Revenue   float64
}

// ClassifyABC ranks products by revenue descending and assigns A to products
// inside the first 80% of cumulative revenue, B inside 95%, C to the rest.
// Deterministic: equal revenues are ordered by product ID.
func ClassifyABC(products []ProductRevenue) map[string]string {
	classes := make(map[string]string, len(products))
	if len(products) == 0 {
		return classes
	}

	sorted := append([]ProductRevenue(nil), products...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Revenue != sorted[j].Revenue {
			return sorted[i].Revenue > sorted[j].Revenue
		}
		return sorted[i].ProductID < sorted[j].ProductID
	})

	var total float64
	for _, p := range sorted {
		total += p.Revenue
	}
	if total <= 0 {
		for _, p := range sorted {
			classes[p.ProductID] = "C"
		}
		return classes
	}

	var cumulative float64
	for _, p := range sorted {
		cumulative += p.Revenue
		share := cumulative / total
		switch {
		case share <= abcClassACutoff:
			classes[p.ProductID] = "A"
		case share <= abcClassBCutoff:
			classes[p.ProductID] = "B"
		default:
			classes[p.ProductID] = "C"
		}
	}

	// The top product is always A even when it alone exceeds the cutoff.
	classes[sorted[0].ProductID] = "A"
	return classes
}

// ClassifyXYZ assigns the demand-variability class from the coefficient of
// variation of the demand series: X below 0.5, Y below 1.0, Z otherwise.
// An empty or zero-mean series is maximally unpredictable: Z.
func ClassifyXYZ(demand []float64) string {
	cv, ok := CoefficientOfVariation(demand)
	if !ok {
		return "Z"
	}
	switch {
	case cv < xyzClassXCutoff:
		return "X"
	case cv < xyzClassYCutoff:
		return "Y"
	default:
		return "Z"
	}
}

// CoefficientOfVariation is stddev/mean of the series. ok is false when the
// series is empty or its mean is zero.
func CoefficientOfVariation(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	mean := Mean(series)
	if mean == 0 {
		return 0, false
	}
	return StdDev(series) / mean, true
}

// Mean is the arithmetic mean of the series.
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// StdDev is the population standard deviation of the series.
func StdDev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	mean := Mean(series)
	var sumSq float64
	for _, v := range series {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(series)))
}

// SafetyStockInput feeds the z-score safety stock formula.
type SafetyStockInput struct {
	ServiceLevelZ   float64 // z-score for the target service level, e.g. 1.65 for 95%
	LeadTimeDays    float64 // mean replenishment lead time
	LeadTimeStdDev  float64 // lead time variability
	DailyDemandMean float64
	DailyDemandStd  float64
}

// SafetyStock sizes the buffer above mean lead-time demand:
// Z * sqrt(LT * sigmaD^2 + D^2 * sigmaLT^2). Never negative.
func SafetyStock(in SafetyStockInput) float64 {
	variance := in.LeadTimeDays*in.DailyDemandStd*in.DailyDemandStd +
		in.DailyDemandMean*in.DailyDemandMean*in.LeadTimeStdDev*in.LeadTimeStdDev
	if variance <= 0 {
		return 0
	}
	ss := in.ServiceLevelZ * math.Sqrt(variance)
	if ss < 0 {
		return 0
	}
	return ss
}

// MovingAverageForecast projects the mean of the trailing window forward
// periods times. Window values larger than the series fall back to the whole
// series; an empty series forecasts zero.
func MovingAverageForecast(series []float64, window, periods int) []float64 {
	if periods <= 0 {
		return nil
	}
	forecast := make([]float64, periods)
	if len(series) == 0 {
		return forecast
	}
	if window <= 0 || window > len(series) {
		window = len(series)
	}

	avg := Mean(series[len(series)-window:])
	for i := range forecast {
		forecast[i] = avg
	}
	return forecast
}
