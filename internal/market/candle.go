package market

import "sort"

// Candle is one OHLCV sample. Start is the bucket open time in unix seconds.
// Candles are treated as immutable once fetched.
type Candle struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// CandleKey is the dedup identity for a candle. Close is kept alongside Start
// deliberately: the upstream feed has been observed to re-deliver the same
// bucket, and a differing close for the same start is surfaced as two rows
// rather than silently dropped.
type CandleKey struct {
	Start int64
	Close float64
}

// Key returns the dedup identity of c.
func (c Candle) Key() CandleKey {
	return CandleKey{Start: c.Start, Close: c.Close}
}

// SortByStart orders candles ascending by open time, in place.
func SortByStart(cs []Candle) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Start < cs[j].Start })
}
