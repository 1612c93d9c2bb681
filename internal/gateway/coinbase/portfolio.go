package coinbase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// PortfolioUUID resolves the UUID of the configured portfolio type.
func (c *Client) PortfolioUUID(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/portfolios", nil, nil)
	if err != nil {
		return "", err
	}
	var uuid string
	gjson.GetBytes(data, "portfolios").ForEach(func(_, p gjson.Result) bool {
		if p.Get("type").String() == c.cfg.PortfolioType {
			uuid = p.Get("uuid").String()
			return false
		}
		return true
	})
	if uuid == "" {
		return "", fmt.Errorf("portfolio type %s not found", c.cfg.PortfolioType)
	}
	return uuid, nil
}

// PortfolioBalance returns the portfolio's total USD balance.
func (c *Client) PortfolioBalance(ctx context.Context, portfolioUUID string) (float64, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/portfolios/"+portfolioUUID, nil, nil)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(data, "breakdown.portfolio_balances.total_balance.value").Float(), nil
}

// ListPositions returns the open perpetual positions in the portfolio.
func (c *Client) ListPositions(ctx context.Context, portfolioUUID string) ([]Position, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/intx/positions/"+portfolioUUID, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []Position
	gjson.GetBytes(data, "positions").ForEach(func(_, row gjson.Result) bool {
		netSize := row.Get("net_size").Float()
		side := Buy
		if row.Get("position_side").String() == "POSITION_SIDE_SHORT" || netSize < 0 {
			side = Sell
		}
		out = append(out, Position{
			ProductID:    row.Get("product_id").String(),
			Side:         side,
			NetSize:      netSize,
			EntryPrice:   row.Get("entry_vwap.value").Float(),
			MarkPrice:    row.Get("mark_price.value").Float(),
			UnrealizedPL: row.Get("unrealized_pnl.value").Float(),
		})
		return true
	})
	return out, nil
}
