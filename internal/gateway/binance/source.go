// Package binance adapts Binance USDT-margined futures klines as a fallback
// candle source for perpetual products.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"vela/internal/market"
)

const maxKlineLimit = 1500

var intervals = map[market.Granularity]string{
	market.OneMinute:     "1m",
	market.FiveMinute:    "5m",
	market.FifteenMinute: "15m",
	market.ThirtyMinute:  "30m",
	market.OneHour:       "1h",
	market.SixHour:       "6h",
	market.OneDay:        "1d",
}

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	// Quote is the settlement asset appended when mapping perpetual product
	// IDs to Binance symbols.
	Quote string
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if strings.TrimSpace(c.Quote) == "" {
		c.Quote = "USDT"
	}
	return c
}

// Source implements market.Source on the futures klines endpoint.
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

func (s *Source) Candles(ctx context.Context, productID string, start, end time.Time, g market.Granularity) ([]market.Candle, error) {
	interval, ok := intervals[g]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity %q", g)
	}
	symbol, err := s.toSymbol(productID)
	if err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli() - 1).
		Limit(maxKlineLimit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			Start:  kl.OpenTime / 1000,
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	return out, nil
}

func (s *Source) Name() string { return "binance" }

// toSymbol maps a perpetual product ID like "BTC-PERP-INTX" (or a spot pair
// like "BTC-USD") onto the corresponding futures symbol.
func (s *Source) toSymbol(productID string) (string, error) {
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(productID)), "-")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("cannot map product %q to a futures symbol", productID)
	}
	return parts[0] + s.cfg.Quote, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
