// Package coinbase implements the Advanced Trade REST surface the bot needs:
// candles, orders, previews, portfolios and perpetual positions.
package coinbase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"vela/internal/market"
)

// Client talks to the Advanced Trade API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func New(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:        final,
		httpClient: &http.Client{Timeout: final.HTTPTimeout},
		now:        time.Now,
	}
}

// do signs and executes one request and returns the raw body. Non-2xx
// responses come back as *APIError with the upstream error code when the body
// carries one.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	full := c.cfg.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, full, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CB-ACCESS-KEY", c.cfg.APIKey)
	req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	req.Header.Set("CB-ACCESS-SIGN", c.sign(ts, method, path, body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		parsed := gjson.ParseBytes(data)
		return nil, &APIError{
			Status:  resp.StatusCode,
			Code:    parsed.Get("error").String(),
			Message: parsed.Get("message").String(),
		}
	}
	return data, nil
}

// sign computes the HMAC over timestamp + method + request path + body. The
// query string is excluded from the prehash.
func (c *Client) sign(ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Candles implements market.Source over the product candles endpoint. The
// upstream returns newest-first; callers own ordering and dedup.
func (c *Client) Candles(ctx context.Context, productID string, start, end time.Time, g market.Granularity) ([]market.Candle, error) {
	query := url.Values{}
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	query.Set("granularity", string(g))
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/products/"+productID+"/candles", query, nil)
	if err != nil {
		return nil, err
	}
	rows := gjson.GetBytes(data, "candles")
	out := make([]market.Candle, 0, len(rows.Array()))
	rows.ForEach(func(_, row gjson.Result) bool {
		out = append(out, market.Candle{
			Start:  row.Get("start").Int(),
			Open:   row.Get("open").Float(),
			High:   row.Get("high").Float(),
			Low:    row.Get("low").Float(),
			Close:  row.Get("close").Float(),
			Volume: row.Get("volume").Float(),
		})
		return true
	})
	return out, nil
}

func (c *Client) Name() string { return "coinbase" }

// BestBidAsk returns the top of book for each requested product.
func (c *Client) BestBidAsk(ctx context.Context, productIDs []string) (map[string]Quote, error) {
	query := url.Values{}
	for _, id := range productIDs {
		query.Add("product_ids", id)
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/best_bid_ask", query, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Quote)
	gjson.GetBytes(data, "pricebooks").ForEach(func(_, book gjson.Result) bool {
		q := Quote{
			ProductID: book.Get("product_id").String(),
			Bid:       book.Get("bids.0.price").Float(),
			Ask:       book.Get("asks.0.price").Float(),
		}
		out[q.ProductID] = q
		return true
	})
	return out, nil
}

// TransactionSummary returns the account's current fee tier.
func (c *Client) TransactionSummary(ctx context.Context) (FeeTier, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/transaction_summary", nil, nil)
	if err != nil {
		return FeeTier{}, err
	}
	tier := gjson.GetBytes(data, "fee_tier")
	return FeeTier{
		TakerRate: tier.Get("taker_fee_rate").Float(),
		MakerRate: tier.Get("maker_fee_rate").Float(),
	}, nil
}
