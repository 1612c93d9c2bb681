package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

type marketIOC struct {
	BaseSize string `json:"base_size"`
}

type limitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only"`
}

type triggerBracketGTD struct {
	BaseSize         string `json:"base_size"`
	LimitPrice       string `json:"limit_price"`
	StopTriggerPrice string `json:"stop_trigger_price"`
	EndTime          string `json:"end_time"`
}

type orderConfiguration struct {
	MarketIOC      *marketIOC         `json:"market_market_ioc,omitempty"`
	LimitGTC       *limitGTC          `json:"limit_limit_gtc,omitempty"`
	TriggerBracket *triggerBracketGTD `json:"trigger_bracket_gtd,omitempty"`
}

type orderPayload struct {
	ClientOrderID string             `json:"client_order_id"`
	ProductID     string             `json:"product_id"`
	Side          Side               `json:"side"`
	Leverage      string             `json:"leverage,omitempty"`
	Configuration orderConfiguration `json:"order_configuration"`
}

func marketPayload(req OrderRequest) orderPayload {
	return orderPayload{
		ClientOrderID: req.ClientOrderID,
		ProductID:     req.ProductID,
		Side:          req.Side,
		Leverage:      req.Leverage,
		Configuration: orderConfiguration{MarketIOC: &marketIOC{BaseSize: req.BaseSize}},
	}
}

func limitPayload(req OrderRequest) orderPayload {
	return orderPayload{
		ClientOrderID: req.ClientOrderID,
		ProductID:     req.ProductID,
		Side:          req.Side,
		Leverage:      req.Leverage,
		Configuration: orderConfiguration{LimitGTC: &limitGTC{
			BaseSize:   req.BaseSize,
			LimitPrice: req.LimitPrice,
			PostOnly:   req.PostOnly,
		}},
	}
}

func bracketPayload(req BracketRequest) orderPayload {
	return orderPayload{
		ClientOrderID: req.ClientOrderID,
		ProductID:     req.ProductID,
		Side:          req.Side,
		Configuration: orderConfiguration{TriggerBracket: &triggerBracketGTD{
			BaseSize:         req.BaseSize,
			LimitPrice:       req.TakeProfit,
			StopTriggerPrice: req.StopLoss,
			EndTime:          req.EndTime,
		}},
	}
}

func (c *Client) submit(ctx context.Context, payload orderPayload) (Order, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, fmt.Errorf("encoding order: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders", nil, body)
	if err != nil {
		return Order{}, err
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.Get("success").Bool() {
		errResp := parsed.Get("error_response")
		return Order{}, &APIError{
			Status:  http.StatusOK,
			Code:    errResp.Get("error").String(),
			Message: errResp.Get("message").String(),
		}
	}
	return Order{
		ID:            parsed.Get("success_response.order_id").String(),
		ClientOrderID: payload.ClientOrderID,
		ProductID:     payload.ProductID,
		Side:          payload.Side,
		Status:        "PENDING",
	}, nil
}

// CreateMarketOrder submits an immediate-or-cancel market order.
func (c *Client) CreateMarketOrder(ctx context.Context, req OrderRequest) (Order, error) {
	return c.submit(ctx, marketPayload(req))
}

// CreateLimitOrder submits a good-til-canceled limit order.
func (c *Client) CreateLimitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.LimitPrice == "" {
		return Order{}, fmt.Errorf("limit order requires a price")
	}
	return c.submit(ctx, limitPayload(req))
}

// CreateBracketOrder submits a good-til-date take-profit/stop-loss bracket.
func (c *Client) CreateBracketOrder(ctx context.Context, req BracketRequest) (Order, error) {
	return c.submit(ctx, bracketPayload(req))
}

// PreviewMarketOrder runs a market order through the preview endpoint without
// submitting it. Rejection reasons surface in Preview.Errors.
func (c *Client) PreviewMarketOrder(ctx context.Context, req OrderRequest) (Preview, error) {
	payload := marketPayload(req)
	payload.ClientOrderID = ""
	body, err := json.Marshal(payload)
	if err != nil {
		return Preview{}, fmt.Errorf("encoding preview: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders/preview", nil, body)
	if err != nil {
		return Preview{}, err
	}
	parsed := gjson.ParseBytes(data)
	p := Preview{
		OrderTotal:      parsed.Get("order_total").Float(),
		CommissionTotal: parsed.Get("commission_total").Float(),
	}
	parsed.Get("errs").ForEach(func(_, e gjson.Result) bool {
		p.Errors = append(p.Errors, e.String())
		return true
	})
	return p, nil
}

// GetOrder fetches the current state of one order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/orders/historical/"+orderID, nil, nil)
	if err != nil {
		return Order{}, err
	}
	return parseOrder(gjson.GetBytes(data, "order")), nil
}

// ListOrders returns orders for a product filtered by status ("OPEN",
// "FILLED", ...). An empty status returns everything.
func (c *Client) ListOrders(ctx context.Context, productID, status string) ([]Order, error) {
	query := url.Values{}
	if productID != "" {
		query.Set("product_id", productID)
	}
	if status != "" {
		query.Add("order_status", status)
	}
	data, err := c.do(ctx, http.MethodGet, "/api/v3/brokerage/orders/historical/batch", query, nil)
	if err != nil {
		return nil, err
	}
	var out []Order
	gjson.GetBytes(data, "orders").ForEach(func(_, row gjson.Result) bool {
		out = append(out, parseOrder(row))
		return true
	})
	return out, nil
}

// CancelOrders cancels the given order IDs and returns the IDs upstream
// confirmed.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(map[string][]string{"order_ids": orderIDs})
	if err != nil {
		return nil, fmt.Errorf("encoding cancel: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, "/api/v3/brokerage/orders/batch_cancel", nil, body)
	if err != nil {
		return nil, err
	}
	var canceled []string
	gjson.GetBytes(data, "results").ForEach(func(_, row gjson.Result) bool {
		if row.Get("success").Bool() {
			canceled = append(canceled, row.Get("order_id").String())
		}
		return true
	})
	return canceled, nil
}

func parseOrder(row gjson.Result) Order {
	return Order{
		ID:              row.Get("order_id").String(),
		ClientOrderID:   row.Get("client_order_id").String(),
		ProductID:       row.Get("product_id").String(),
		Side:            Side(row.Get("side").String()),
		Status:          row.Get("status").String(),
		FilledSize:      row.Get("filled_size").Float(),
		AvgFillPrice:    row.Get("average_filled_price").Float(),
		TotalFees:       row.Get("total_fees").Float(),
		CreatedAt:       row.Get("created_time").String(),
		AttachedOrderID: row.Get("attached_order_id").String(),
	}
}
