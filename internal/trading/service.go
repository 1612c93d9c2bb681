// Package trading turns strategy intent into Advanced Trade orders: market
// and limit entries with attached take-profit/stop-loss brackets, limit fill
// monitoring, order cancellation and parallel position closing.
package trading

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"vela/internal/gateway/coinbase"
	"vela/internal/logger"
)

// Exchange is the broker surface the service drives. *coinbase.Client
// satisfies it; tests substitute a mock.
type Exchange interface {
	CreateMarketOrder(ctx context.Context, req coinbase.OrderRequest) (coinbase.Order, error)
	CreateLimitOrder(ctx context.Context, req coinbase.OrderRequest) (coinbase.Order, error)
	CreateBracketOrder(ctx context.Context, req coinbase.BracketRequest) (coinbase.Order, error)
	PreviewMarketOrder(ctx context.Context, req coinbase.OrderRequest) (coinbase.Preview, error)
	GetOrder(ctx context.Context, orderID string) (coinbase.Order, error)
	ListOrders(ctx context.Context, productID, status string) ([]coinbase.Order, error)
	CancelOrders(ctx context.Context, orderIDs []string) ([]string, error)
	ListPositions(ctx context.Context, portfolioUUID string) ([]coinbase.Position, error)
	PortfolioUUID(ctx context.Context) (string, error)
	TransactionSummary(ctx context.Context) (coinbase.FeeTier, error)
}

// Journal receives a record of every accepted order. Optional.
type Journal interface {
	RecordOrder(ctx context.Context, order coinbase.Order, kind string) error
}

type Service struct {
	exchange Exchange
	journal  Journal
	cfg      Config
}

func NewService(exchange Exchange, journal Journal, cfg Config) *Service {
	return &Service{exchange: exchange, journal: journal, cfg: cfg.withDefaults()}
}

// TargetedOrder is an entry order plus the bracket protecting it, when the
// bracket could be armed.
type TargetedOrder struct {
	Entry   coinbase.Order
	Bracket *coinbase.Order
}

// BracketPrices derives the take-profit and stop-loss prices for a position
// entered at entry. A short position mirrors the multipliers around the
// entry.
func (s *Service) BracketPrices(entry float64, side coinbase.Side) (takeProfit, stopLoss decimal.Decimal) {
	price := decimal.NewFromFloat(entry)
	tp := decimal.NewFromFloat(s.cfg.TakeProfitMult)
	sl := decimal.NewFromFloat(s.cfg.StopLossMult)
	if side == coinbase.Sell {
		two := decimal.NewFromInt(2)
		tp, sl = two.Sub(tp), two.Sub(sl)
	}
	return price.Mul(tp), price.Mul(sl)
}

// PlaceMarketOrderWithTargets submits a market entry, waits briefly for the
// fill, and arms an opposite-side bracket around the executed size. A bracket
// failure does not undo the entry; the caller gets the entry with a nil
// Bracket.
func (s *Service) PlaceMarketOrderWithTargets(ctx context.Context, productID string, side coinbase.Side, size, takeProfit, stopLoss float64, leverage string) (TargetedOrder, error) {
	entry, err := s.exchange.CreateMarketOrder(ctx, coinbase.OrderRequest{
		ClientOrderID: clientOrderID("order"),
		ProductID:     productID,
		Side:          side,
		BaseSize:      formatAmount(size),
		Leverage:      leverage,
	})
	if err != nil {
		return TargetedOrder{}, fmt.Errorf("placing market entry: %w", err)
	}
	s.record(ctx, entry, "market_entry")
	logger.Infof("trading: market %s %s size=%s order=%s", side, productID, formatAmount(size), entry.ID)

	// The IOC order settles almost immediately; give the books a moment
	// before polling.
	s.cfg.Sleep(2 * time.Second)
	status, err := s.exchange.GetOrder(ctx, entry.ID)
	if err != nil {
		logger.Warnf("trading: entry status check failed for %s: %v", entry.ID, err)
		return TargetedOrder{Entry: entry}, nil
	}
	if !status.Filled() {
		logger.Warnf("trading: entry %s not filled (status=%s), bracket skipped", entry.ID, status.Status)
		return TargetedOrder{Entry: status}, nil
	}

	bracket, err := s.armBracket(ctx, productID, side, size, takeProfit, stopLoss)
	if err != nil {
		logger.Errorf("trading: bracket for %s failed: %v", entry.ID, err)
		return TargetedOrder{Entry: status}, nil
	}
	return TargetedOrder{Entry: status, Bracket: &bracket}, nil
}

// PlaceLimitOrderWithTargets submits a GTC limit entry. The bracket cannot be
// armed until the entry fills; callers follow up with MonitorLimitOrder.
func (s *Service) PlaceLimitOrderWithTargets(ctx context.Context, productID string, side coinbase.Side, size, limitPrice float64, leverage string) (coinbase.Order, error) {
	order, err := s.exchange.CreateLimitOrder(ctx, coinbase.OrderRequest{
		ClientOrderID: clientOrderID("order"),
		ProductID:     productID,
		Side:          side,
		BaseSize:      formatAmount(size),
		LimitPrice:    formatAmount(limitPrice),
		Leverage:      leverage,
	})
	if err != nil {
		return coinbase.Order{}, fmt.Errorf("placing limit entry: %w", err)
	}
	s.record(ctx, order, "limit_entry")
	logger.Infof("trading: limit %s %s size=%s price=%s order=%s", side, productID, formatAmount(size), formatAmount(limitPrice), order.ID)
	return order, nil
}

// PlaceBracketAfterFill arms a bracket for an entry that is already filled.
func (s *Service) PlaceBracketAfterFill(ctx context.Context, productID, orderID string, entrySide coinbase.Side, size, takeProfit, stopLoss float64) (coinbase.Order, error) {
	status, err := s.exchange.GetOrder(ctx, orderID)
	if err != nil {
		return coinbase.Order{}, fmt.Errorf("checking entry %s: %w", orderID, err)
	}
	if !status.Filled() {
		return coinbase.Order{}, fmt.Errorf("entry %s not filled (status=%s)", orderID, status.Status)
	}
	return s.armBracket(ctx, productID, entrySide, size, takeProfit, stopLoss)
}

// MonitorLimitOrder polls a limit entry until it fills, then arms the
// bracket. It gives up after the configured max wait or when the order
// reaches a terminal non-filled state.
func (s *Service) MonitorLimitOrder(ctx context.Context, productID, orderID string, entrySide coinbase.Side, size, takeProfit, stopLoss float64) (coinbase.Order, error) {
	deadline := s.cfg.Now().Add(s.cfg.MonitorMaxWait)
	for {
		if err := ctx.Err(); err != nil {
			return coinbase.Order{}, err
		}
		status, err := s.exchange.GetOrder(ctx, orderID)
		if err != nil {
			logger.Warnf("trading: monitor poll failed for %s: %v", orderID, err)
		} else {
			switch status.Status {
			case "FILLED":
				logger.Infof("trading: limit %s filled at %v, arming bracket", orderID, status.AvgFillPrice)
				return s.armBracket(ctx, productID, entrySide, size, takeProfit, stopLoss)
			case "CANCELLED", "EXPIRED", "FAILED":
				return coinbase.Order{}, fmt.Errorf("limit order %s ended as %s", orderID, status.Status)
			}
		}
		if !s.cfg.Now().Before(deadline) {
			return coinbase.Order{}, fmt.Errorf("limit order %s not filled within %s", orderID, s.cfg.MonitorMaxWait)
		}
		s.cfg.Sleep(s.cfg.MonitorInterval)
	}
}

// CancelAllOrders cancels every open order, optionally scoped to one product.
// Bracket attachments go in a first batch so no parent cancellation can leave
// an orphaned bracket behind.
func (s *Service) CancelAllOrders(ctx context.Context, productID string) (int, error) {
	open, err := s.exchange.ListOrders(ctx, productID, "OPEN")
	if err != nil {
		return 0, fmt.Errorf("listing open orders: %w", err)
	}
	if len(open) == 0 {
		return 0, nil
	}
	attached := make(map[string]bool)
	attachments := make([]string, 0)
	for _, o := range open {
		if o.AttachedOrderID != "" && !attached[o.AttachedOrderID] {
			attached[o.AttachedOrderID] = true
			attachments = append(attachments, o.AttachedOrderID)
		}
	}
	total := 0
	if len(attachments) > 0 {
		canceled, err := s.exchange.CancelOrders(ctx, attachments)
		if err != nil {
			logger.Warnf("trading: canceling bracket attachments failed: %v", err)
		} else {
			total += len(canceled)
		}
	}
	ids := make([]string, 0, len(open))
	for _, o := range open {
		if attached[o.ID] {
			continue
		}
		ids = append(ids, o.ID)
	}
	if len(ids) > 0 {
		canceled, err := s.exchange.CancelOrders(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("canceling orders: %w", err)
		}
		total += len(canceled)
	}
	logger.Infof("trading: canceled %d/%d open orders", total, len(open))
	return total, nil
}

// TradeAmountAndFee sizes a trade so balance covers both the position and
// the taker fee. The live fee tier is preferred; any lookup failure falls
// back to the default rate.
func (s *Service) TradeAmountAndFee(ctx context.Context, balance, price float64, isBuy bool) (amount, fee float64) {
	if balance < 5 || price <= 0 {
		return 0, 0
	}
	rate := s.cfg.DefaultFeeRate
	if tier, err := s.exchange.TransactionSummary(ctx); err != nil {
		logger.Warnf("trading: fee tier lookup failed, using default rate: %v", err)
	} else if tier.TakerRate > 0 {
		rate = tier.TakerRate
	} else if tier.MakerRate > 0 {
		rate = tier.MakerRate
	}

	bal := decimal.NewFromFloat(balance)
	px := decimal.NewFromFloat(price)
	r := decimal.NewFromFloat(rate)
	if isBuy {
		amt := bal.Div(px).Div(decimal.NewFromInt(1).Add(r))
		amount, _ = amt.Float64()
		f := bal.Sub(amt.Mul(px))
		fee, _ = f.Float64()
		return amount, fee
	}
	f := bal.Mul(r)
	fee, _ = f.Float64()
	amount, _ = bal.Sub(f).Float64()
	return amount, fee
}

func (s *Service) armBracket(ctx context.Context, productID string, entrySide coinbase.Side, size, takeProfit, stopLoss float64) (coinbase.Order, error) {
	bracket, err := s.exchange.CreateBracketOrder(ctx, coinbase.BracketRequest{
		ClientOrderID: clientOrderID("bracket"),
		ProductID:     productID,
		Side:          entrySide.Opposite(),
		BaseSize:      formatAmount(size),
		TakeProfit:    formatAmount(takeProfit),
		StopLoss:      formatAmount(stopLoss),
		EndTime:       s.cfg.Now().UTC().Add(s.cfg.BracketEndTime).Format(time.RFC3339),
	})
	if err != nil {
		return coinbase.Order{}, fmt.Errorf("placing bracket: %w", err)
	}
	s.record(ctx, bracket, "bracket")
	logger.Infof("trading: bracket armed for %s tp=%s sl=%s order=%s",
		productID, formatAmount(takeProfit), formatAmount(stopLoss), bracket.ID)
	return bracket, nil
}

func (s *Service) record(ctx context.Context, order coinbase.Order, kind string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordOrder(ctx, order, kind); err != nil {
		logger.Warnf("trading: journaling %s order %s failed: %v", kind, order.ID, err)
	}
}

// clientOrderID builds a unique idempotency key like
// "order_0a1b2c3d4e5f6a7b_1741003200".
func clientOrderID(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s_%d", prefix, hex.EncodeToString(id[:])[:16], time.Now().Unix())
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).String()
}
