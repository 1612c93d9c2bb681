package trading

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"vela/internal/gateway/coinbase"
	"vela/internal/logger"
)

// CloseReport summarizes one CloseAllPositions run.
type CloseReport struct {
	Total  int
	Closed int
	Failed int
}

// CloseAllPositions flattens every open perpetual position, optionally scoped
// to one product. Positions close in parallel under a bounded worker pool and
// a hard deadline; a close rejected for insufficient funds retries down the
// size ladder.
func (s *Service) CloseAllPositions(ctx context.Context, productID string) (CloseReport, error) {
	// Resting brackets hold margin against the position; cancel them first so
	// a full-size close can pass its preview. Best effort.
	if _, err := s.CancelAllOrders(ctx, productID); err != nil {
		logger.Warnf("trading: canceling open orders before close failed: %v", err)
	}
	portfolio, err := s.exchange.PortfolioUUID(ctx)
	if err != nil {
		return CloseReport{}, err
	}
	positions, err := s.exchange.ListPositions(ctx, portfolio)
	if err != nil {
		return CloseReport{}, err
	}

	targets := positions[:0:0]
	for _, p := range positions {
		if p.ProductID == "" || math.Abs(p.NetSize) <= 0 {
			continue
		}
		if productID != "" && p.ProductID != productID {
			continue
		}
		targets = append(targets, p)
	}
	report := CloseReport{Total: len(targets)}
	if len(targets) == 0 {
		return report, nil
	}
	logger.Infof("trading: closing %d positions", len(targets))

	closeCtx, cancel := context.WithTimeout(ctx, s.cfg.CloseTimeout)
	defer cancel()

	var closed atomic.Int64
	g, gctx := errgroup.WithContext(closeCtx)
	g.SetLimit(s.cfg.CloseWorkers)
	for _, pos := range targets {
		pos := pos
		g.Go(func() error {
			if s.closePosition(gctx, pos) {
				closed.Add(1)
			}
			// A single stuck position must not cancel its siblings.
			return nil
		})
	}
	err = g.Wait()
	report.Closed = int(closed.Load())
	report.Failed = report.Total - report.Closed
	logger.Infof("trading: closed %d/%d positions", report.Closed, report.Total)
	if report.Failed > 0 && errors.Is(closeCtx.Err(), context.DeadlineExceeded) {
		logger.Warnf("trading: %d positions did not close within %s", report.Failed, s.cfg.CloseTimeout)
	}
	return report, err
}

// closePosition walks the size ladder until a market close is accepted. Only
// an insufficient-funds rejection moves to the next rung; anything else
// stops the ladder.
func (s *Service) closePosition(ctx context.Context, pos coinbase.Position) bool {
	side := pos.Side.Opposite()
	size := decimal.NewFromFloat(math.Abs(pos.NetSize))
	for _, fraction := range s.cfg.SizeLadder {
		if ctx.Err() != nil {
			return false
		}
		closeSize := size.Mul(decimal.NewFromFloat(fraction))
		req := coinbase.OrderRequest{
			ClientOrderID: clientOrderID("close"),
			ProductID:     pos.ProductID,
			Side:          side,
			BaseSize:      closeSize.String(),
		}
		preview, err := s.exchange.PreviewMarketOrder(ctx, req)
		if err != nil {
			logger.Warnf("trading: close preview for %s failed: %v", pos.ProductID, err)
		} else if preview.HasError("PREVIEW_INSUFFICIENT_FUNDS") {
			logger.Warnf("trading: close %s at %.0f%% rejected for funds, stepping down", pos.ProductID, fraction*100)
			continue
		} else if preview.Blocked() {
			logger.Errorf("trading: close %s blocked: %v", pos.ProductID, preview.Errors)
			return false
		}
		order, err := s.exchange.CreateMarketOrder(ctx, req)
		if err != nil {
			var apiErr *coinbase.APIError
			if errors.As(err, &apiErr) && apiErr.Code == "PREVIEW_INSUFFICIENT_FUNDS" {
				continue
			}
			logger.Errorf("trading: close %s at %.0f%% failed: %v", pos.ProductID, fraction*100, err)
			return false
		}
		s.record(ctx, order, "close")
		logger.Infof("trading: closed %s with %s %s (%.0f%%)", pos.ProductID, side, closeSize.String(), fraction*100)
		return true
	}
	logger.Errorf("trading: size ladder exhausted for %s", pos.ProductID)
	return false
}
