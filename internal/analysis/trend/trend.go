// Package trend detects the two regime signals the strategy acts on: a clear
// downtrend and an oversold reversal setup.
package trend

import (
	"math"

	"vela/internal/analysis/indicator"
	"vela/internal/market"
)

const (
	emaPeriod       = 50
	atrPeriod       = 14
	rsiPeriod       = 14
	bollingerPeriod = 20
	bollingerDev    = 2.0
	structureBars   = 5
	minATRPercent   = 0.7
	oversoldRSI     = 30.0
)

// DowntrendMetrics carries the individual checks behind a downtrend verdict.
type DowntrendMetrics struct {
	BelowEMA     bool    `json:"below_ema"`
	LowerLows    bool    `json:"lower_lows"`
	LowerHighs   bool    `json:"lower_highs"`
	ATRCheck     bool    `json:"atr_check"`
	ATRPercent   float64 `json:"atr_percent"`
	CurrentClose float64 `json:"current_close"`
	CurrentEMA   float64 `json:"current_ema"`
}

// DetectClearDowntrend reports a downtrend when the last bars close below the
// 50-period EMA, print lower lows and lower highs, and volatility clears the
// ATR% floor.
func DetectClearDowntrend(candles []market.Candle) (bool, DowntrendMetrics) {
	if len(candles) < emaPeriod {
		return false, DowntrendMetrics{}
	}
	s := indicator.NewSeries(candles)
	ema := s.EMA(emaPeriod)
	atrPct := s.ATRPercent(atrPeriod)

	n := s.Len()
	belowEMA := true
	for i := n - structureBars; i < n; i++ {
		// A warmup bar has no EMA yet and cannot confirm the trend.
		if math.IsNaN(ema[i]) || s.Closes[i] >= ema[i] {
			belowEMA = false
			break
		}
	}
	lowerLows, lowerHighs := true, true
	for i := n - structureBars + 1; i < n; i++ {
		if s.Lows[i] >= s.Lows[i-1] {
			lowerLows = false
		}
		if s.Highs[i] >= s.Highs[i-1] {
			lowerHighs = false
		}
	}
	currentATR := indicator.Last(atrPct)
	m := DowntrendMetrics{
		BelowEMA:     belowEMA,
		LowerLows:    lowerLows,
		LowerHighs:   lowerHighs,
		ATRCheck:     currentATR > minATRPercent,
		ATRPercent:   currentATR,
		CurrentClose: s.Closes[n-1],
		CurrentEMA:   indicator.Last(ema),
	}
	return m.BelowEMA && m.LowerLows && m.LowerHighs && m.ATRCheck, m
}

// OversoldMetrics carries the checks behind an oversold reversal verdict.
type OversoldMetrics struct {
	RSICheck     bool    `json:"rsi_check"`
	BandCheck    bool    `json:"band_check"`
	CurrentRSI   float64 `json:"current_rsi"`
	CurrentClose float64 `json:"current_close"`
	LowerBand    float64 `json:"lower_band"`
}

// DetectOversoldReversal reports a reversal setup when RSI drops under 30 and
// the close touches or breaks the lower Bollinger band (20, 2).
func DetectOversoldReversal(candles []market.Candle) (bool, OversoldMetrics) {
	if len(candles) < bollingerPeriod {
		return false, OversoldMetrics{CurrentRSI: 50}
	}
	s := indicator.NewSeries(candles)
	rsi := indicator.Last(s.RSI(rsiPeriod))
	_, _, lower := s.Bollinger(bollingerPeriod, bollingerDev)
	lowerBand := indicator.Last(lower)
	lastClose := s.Closes[s.Len()-1]

	m := OversoldMetrics{
		RSICheck:     rsi < oversoldRSI,
		BandCheck:    lowerBand > 0 && lastClose <= lowerBand,
		CurrentRSI:   rsi,
		CurrentClose: lastClose,
		LowerBand:    lowerBand,
	}
	return m.RSICheck && m.BandCheck, m
}
