package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity is the fixed duration of one candle bucket, named the way the
// Coinbase Advanced Trade API names them.
type Granularity string

const (
	OneMinute     Granularity = "ONE_MINUTE"
	FiveMinute    Granularity = "FIVE_MINUTE"
	FifteenMinute Granularity = "FIFTEEN_MINUTE"
	ThirtyMinute  Granularity = "THIRTY_MINUTE"
	OneHour       Granularity = "ONE_HOUR"
	SixHour       Granularity = "SIX_HOUR"
	OneDay        Granularity = "ONE_DAY"
)

var granularityDurations = map[Granularity]time.Duration{
	OneMinute:     time.Minute,
	FiveMinute:    5 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	SixHour:       6 * time.Hour,
	OneDay:        24 * time.Hour,
}

// ParseGranularity normalizes user input ("five_minute", "FIVE_MINUTE") to a
// known granularity.
func ParseGranularity(input string) (Granularity, error) {
	g := Granularity(strings.ToUpper(strings.TrimSpace(input)))
	if _, ok := granularityDurations[g]; !ok {
		return "", fmt.Errorf("unsupported granularity: %s", input)
	}
	return g, nil
}

// Duration returns the bucket duration, or 0 for an unknown granularity.
func (g Granularity) Duration() time.Duration {
	return granularityDurations[g]
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	_, ok := granularityDurations[g]
	return ok
}

// Granularities returns all supported names, sorted.
func Granularities() []string {
	out := make([]string, 0, len(granularityDurations))
	for g := range granularityDurations {
		out = append(out, string(g))
	}
	sort.Strings(out)
	return out
}
