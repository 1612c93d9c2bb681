// Package indicator wraps the talib primitives the strategy layer consumes
// and adds the derived series it needs: ATR as a percentage of price,
// percentile thresholds and expansion checks.
package indicator

import (
	"fmt"
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"vela/internal/market"
)

// Series is the per-field view of a candle window.
type Series struct {
	Highs   []float64
	Lows    []float64
	Closes  []float64
	Volumes []float64
}

// NewSeries splits candles into parallel slices for talib.
func NewSeries(candles []market.Candle) Series {
	s := Series{
		Highs:   make([]float64, len(candles)),
		Lows:    make([]float64, len(candles)),
		Closes:  make([]float64, len(candles)),
		Volumes: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Closes[i] = c.Close
		s.Volumes[i] = c.Volume
	}
	return s
}

func (s Series) Len() int { return len(s.Closes) }

// ATR returns the average true range series.
func (s Series) ATR(period int) []float64 {
	if s.Len() <= period {
		return nil
	}
	return sanitize(talib.Atr(s.Highs, s.Lows, s.Closes, period))
}

// ATRPercent returns ATR expressed as a percentage of the close.
func (s Series) ATRPercent(period int) []float64 {
	atr := s.ATR(period)
	out := make([]float64, len(atr))
	for i, v := range atr {
		if s.Closes[i] != 0 {
			out[i] = v / s.Closes[i] * 100
		}
	}
	return out
}

// RSI returns the relative strength index series.
func (s Series) RSI(period int) []float64 {
	if s.Len() <= period {
		return nil
	}
	return sanitize(talib.Rsi(s.Closes, period))
}

// EMA returns the exponential moving average of the closes.
func (s Series) EMA(period int) []float64 {
	if s.Len() < period {
		return nil
	}
	return sanitize(talib.Ema(s.Closes, period))
}

// Bollinger returns the upper, middle and lower bands over the closes.
func (s Series) Bollinger(period int, dev float64) (upper, middle, lower []float64) {
	if s.Len() < period {
		return nil, nil, nil
	}
	u, m, l := talib.BBands(s.Closes, period, dev, dev, talib.SMA)
	return sanitize(u), sanitize(m), sanitize(l)
}

// Last returns the final value of a series, or 0 for an empty one.
func Last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
}

// Percentile computes the p-th percentile of values with linear
// interpolation between ranks.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("percentile of empty series")
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %v out of range", p)
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac, nil
}

// VolatilityThresholds derives the moderate/strong ATR% thresholds from the
// 70th and 90th percentiles of the series.
type VolatilityThresholds struct {
	Moderate float64
	Strong   float64
}

func ComputeVolatilityThresholds(atrPercent []float64) (VolatilityThresholds, error) {
	valid := make([]float64, 0, len(atrPercent))
	for _, v := range atrPercent {
		if v > 0 && !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	moderate, err := Percentile(valid, 70)
	if err != nil {
		return VolatilityThresholds{}, err
	}
	strong, err := Percentile(valid, 90)
	if err != nil {
		return VolatilityThresholds{}, err
	}
	return VolatilityThresholds{Moderate: moderate, Strong: strong}, nil
}

// ATRExpanding reports whether the current ATR exceeds its value lookback
// periods ago, plus both values.
func (s Series) ATRExpanding(period, lookback int) (bool, float64, float64) {
	atr := s.ATR(period)
	if len(atr) <= lookback {
		return false, 0, 0
	}
	current := atr[len(atr)-1]
	historical := atr[len(atr)-1-lookback]
	return current > historical, current, historical
}

// sanitize replaces the warm-up zeros talib emits with NaN so threshold
// comparisons never trip on them.
func sanitize(series []float64) []float64 {
	warmup := true
	for i, v := range series {
		if warmup && v == 0 {
			series[i] = math.NaN()
			continue
		}
		warmup = false
	}
	return series
}
