package analytics

import (
	"math"
	"time"

	"github.com/gifttrack/gifttrack-go/internal/ledger"
)

// recentEntryCount is the tail length used for the recent-rate refinement.
const recentEntryCount = 6

// Rate blending weights: long-window base rate versus recent tail.
const (
	baseRateWeight   = 0.7
	recentRateWeight = 0.3
)

// Confidence factor weights. They sum to 1 so the clamp only bites on
// degenerate inputs.
const (
	dataVolumeWeight        = 0.3
	inverseVarianceWeight   = 0.3
	stabilityWeight         = 0.2
	remainingFractionWeight = 0.2
)

// trendThreshold is the relative rate change beyond which a window third
// counts as rising or falling.
const trendThreshold = 0.15

// HeuristicStrategy is the default closed-form prediction strategy.
type HeuristicStrategy struct{}

// Predict derives an exhaustion estimate from the purchase rate of the
// window, seasonally adjusted for the current hour.
func (HeuristicStrategy) Predict(input PredictionInput) Prediction {
	prediction := Prediction{CreatedAt: input.Now}

	if len(input.Entries) < 2 {
		prediction.Data.Error = "insufficient data for prediction"
		return prediction
	}

	totalSold := 0
	for i := range input.Entries {
		if input.Entries[i].Delta > 0 {
			totalSold += input.Entries[i].Delta
		}
	}

	hoursTracked := math.Max(1, input.Entries[len(input.Entries)-1].Timestamp.
		Sub(input.Entries[0].Timestamp).Hours())
	baseRate := float64(totalSold) / hoursTracked

	blended := baseRateWeight*baseRate + recentRateWeight*recentRate(input.Entries)
	adjusted := blended * seasonalFactor(input.Entries, input.Now)

	prediction.Data = PredictionData{
		TotalSold:    totalSold,
		HoursTracked: hoursTracked,
		HourlyRate:   blended,
		AdjustedRate: adjusted,
	}

	if adjusted <= 0 {
		prediction.Data.Error = "no measurable purchase rate"
		return prediction
	}

	hoursRemaining := int(math.Ceil(float64(input.Remaining) / adjusted))
	soldOutAt := input.Now.Add(time.Duration(hoursRemaining) * time.Hour)

	prediction.SoldOutAt = &soldOutAt
	prediction.Data.HoursRemaining = hoursRemaining
	prediction.Confidence = confidence(input)

	return prediction
}

// recentRate computes the purchase rate over only the last few entries.
func recentRate(entries []entryPoint) float64 {
	if len(entries) < 2 {
		return 0
	}
	tail := entries
	if len(tail) > recentEntryCount {
		tail = tail[len(tail)-recentEntryCount:]
	}

	sold := 0
	for i := range tail {
		if tail[i].Delta > 0 {
			sold += tail[i].Delta
		}
	}
	hours := math.Max(1, tail[len(tail)-1].Timestamp.Sub(tail[0].Timestamp).Hours())
	return float64(sold) / hours
}

// seasonalFactor scales the blended rate by how the current UTC hour
// historically compares to the average hour. An hour with no recorded
// purchases carries no seasonal signal and leaves the rate unchanged.
func seasonalFactor(entries []entryPoint, now time.Time) float64 {
	var buckets [ledger.HoursPerDay]int
	for i := range entries {
		if entries[i].Delta > 0 {
			buckets[entries[i].Timestamp.UTC().Hour()] += entries[i].Delta
		}
	}

	total := 0
	active := 0
	for _, b := range buckets {
		if b > 0 {
			total += b
			active++
		}
	}
	if active == 0 {
		return 1
	}

	current := buckets[now.UTC().Hour()]
	if current == 0 {
		return 1
	}

	average := float64(total) / float64(active)
	return float64(current) / average
}

// confidence scores a prediction in [0,1] from four factors: how much ledger
// data exists, how even the hourly distribution is, how stable consecutive
// purchase rates are, and how far through its supply the gift is. When the
// variance factors are undefined it falls back to a flat 0.8 as long as any
// ledger data exists.
func confidence(input PredictionInput) float64 {
	if len(input.Entries) == 0 {
		return 0
	}

	var hourly []float64
	var buckets [ledger.HoursPerDay]int
	for i := range input.Entries {
		if input.Entries[i].Delta > 0 {
			buckets[input.Entries[i].Timestamp.UTC().Hour()] += input.Entries[i].Delta
		}
	}
	for _, b := range buckets {
		if b > 0 {
			hourly = append(hourly, float64(b))
		}
	}

	rates := pairwiseRates(input.Entries)

	if len(hourly) < 2 || len(rates) < 2 {
		// Not enough structure for the variance factors
		return 0.8
	}

	dataVolume := math.Min(1, float64(len(input.Entries))/24)

	hourlyMean := mean(hourly)
	inverseVariance := 0.0
	if hourlyMean > 0 {
		inverseVariance = 1 - math.Min(1, stdev(hourly)/hourlyMean)
	}

	rateMean := mean(rates)
	stability := 0.0
	if rateMean > 0 {
		stability = 1 / (1 + stdev(rates)/rateMean)
	}

	remainingFraction := 0.0
	if input.Total > 0 {
		remainingFraction = 1 - float64(input.Remaining)/float64(input.Total)
	}

	score := dataVolumeWeight*dataVolume +
		inverseVarianceWeight*inverseVariance +
		stabilityWeight*stability +
		remainingFractionWeight*remainingFraction

	return clamp01(score)
}

// pairwiseRates returns the purchase rate between each pair of consecutive
// positive-delta entries.
func pairwiseRates(entries []entryPoint) []float64 {
	var rates []float64
	var prev *entryPoint
	for i := range entries {
		if entries[i].Delta <= 0 {
			continue
		}
		if prev != nil {
			hours := entries[i].Timestamp.Sub(prev.Timestamp).Hours()
			if hours > 0 {
				rates = append(rates, float64(entries[i].Delta)/hours)
			}
		}
		prev = &entries[i]
	}
	return rates
}

// classifyTrend splits the window chronologically into thirds and compares
// per-third purchase rates. Both successive changes must clear the threshold
// in the same direction for a non-stable classification.
func classifyTrend(entries []entryPoint) string {
	if len(entries) < 3 {
		return TrendStable
	}

	third := len(entries) / 3
	rates := [3]float64{
		windowRate(entries[:third]),
		windowRate(entries[third : 2*third]),
		windowRate(entries[2*third:]),
	}
	return trendFromRates(rates)
}

func trendFromRates(rates [3]float64) string {
	first := relativeChange(rates[0], rates[1])
	second := relativeChange(rates[1], rates[2])

	switch {
	case first > trendThreshold && second > trendThreshold:
		return TrendIncreasing
	case first < -trendThreshold && second < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func relativeChange(from, to float64) float64 {
	if from == 0 {
		if to == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return (to - from) / from
}

// windowRate is the purchase rate of one slice of the window.
func windowRate(entries []entryPoint) float64 {
	if len(entries) == 0 {
		return 0
	}

	sold := 0
	for i := range entries {
		if entries[i].Delta > 0 {
			sold += entries[i].Delta
		}
	}
	hours := math.Max(1, entries[len(entries)-1].Timestamp.Sub(entries[0].Timestamp).Hours())
	return float64(sold) / hours
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
