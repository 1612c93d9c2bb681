package coinbase

import "fmt"

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderRequest describes one order submission. Sizes and prices travel as
// strings because that is what the wire format carries; callers format them
// with decimal to avoid float artifacts.
type OrderRequest struct {
	ClientOrderID string
	ProductID     string
	Side          Side
	// BaseSize is the order quantity in base units.
	BaseSize string
	// LimitPrice is set for limit orders only.
	LimitPrice string
	// Leverage is optional and only meaningful for perpetuals.
	Leverage string
	// PostOnly applies to limit orders.
	PostOnly bool
}

// BracketRequest describes a take-profit/stop-loss pair attached to an open
// position, submitted as a trigger bracket GTD order.
type BracketRequest struct {
	ClientOrderID string
	ProductID     string
	Side          Side
	BaseSize      string
	TakeProfit    string
	StopLoss      string
	EndTime       string
}

// Order is the subset of upstream order state the bot acts on.
type Order struct {
	ID            string
	ClientOrderID string
	ProductID     string
	Side          Side
	Status        string
	FilledSize    float64
	AvgFillPrice  float64
	TotalFees     float64
	CreatedAt     string
	// AttachedOrderID is the bracket riding on this entry, if any.
	AttachedOrderID string
}

// Filled reports whether the order is completely executed.
func (o Order) Filled() bool { return o.Status == "FILLED" }

// Preview is the result of a pre-submission order check.
type Preview struct {
	Errors          []string
	OrderTotal      float64
	CommissionTotal float64
}

// Blocked reports whether the preview carried any rejection reason.
func (p Preview) Blocked() bool { return len(p.Errors) > 0 }

// HasError reports whether the preview rejected with the given code.
func (p Preview) HasError(code string) bool {
	for _, e := range p.Errors {
		if e == code {
			return true
		}
	}
	return false
}

// Position is one open perpetual position.
type Position struct {
	ProductID    string
	Side         Side
	NetSize      float64
	EntryPrice   float64
	MarkPrice    float64
	UnrealizedPL float64
}

// Quote is one product's top of book.
type Quote struct {
	ProductID string
	Bid       float64
	Ask       float64
}

// Mid returns the bid/ask midpoint, or whichever side exists.
func (q Quote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Ask > 0:
		return q.Ask
	default:
		return q.Bid
	}
}

// FeeTier is the taker/maker rate pair from the transaction summary.
type FeeTier struct {
	TakerRate float64
	MakerRate float64
}

// APIError is a non-2xx REST response. Server-side and rate-limit statuses
// are retryable; everything else is not.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("coinbase: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("coinbase: %d: %s", e.Status, e.Message)
}

func (e *APIError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}
