package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"vela/internal/gateway/coinbase"
)

func TestCloseAllPositionsClosesEverything(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	ex.On("ListOrders", mock.Anything, "", "OPEN").Return([]coinbase.Order{}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").Return([]coinbase.Position{
		{ProductID: "BTC-PERP-INTX", Side: coinbase.Buy, NetSize: 0.5},
		{ProductID: "ETH-PERP-INTX", Side: coinbase.Sell, NetSize: -3},
		{ProductID: "SOL-PERP-INTX", Side: coinbase.Buy, NetSize: 0},
	}, nil)
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).Return(coinbase.Preview{}, nil)
	ex.On("CreateMarketOrder", mock.Anything, mock.MatchedBy(func(req coinbase.OrderRequest) bool {
		return req.ProductID == "BTC-PERP-INTX" && req.Side == coinbase.Sell && req.BaseSize == "0.5"
	})).Return(coinbase.Order{ID: "c1"}, nil)
	ex.On("CreateMarketOrder", mock.Anything, mock.MatchedBy(func(req coinbase.OrderRequest) bool {
		return req.ProductID == "ETH-PERP-INTX" && req.Side == coinbase.Buy && req.BaseSize == "3"
	})).Return(coinbase.Order{ID: "c2"}, nil)

	report, err := svc.CloseAllPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, CloseReport{Total: 2, Closed: 2, Failed: 0}, report)
	ex.AssertExpectations(t)
}

func TestCloseAllPositionsCancelsOrdersFirst(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	// A resting bracket holds margin against the position; it has to be gone
	// before the close preview runs.
	var calls []string
	ex.On("ListOrders", mock.Anything, "", "OPEN").
		Run(func(mock.Arguments) { calls = append(calls, "list_orders") }).
		Return([]coinbase.Order{
			{ID: "entry-1", AttachedOrderID: "br-1"},
			{ID: "br-1"},
		}, nil)
	ex.On("CancelOrders", mock.Anything, []string{"br-1"}).
		Run(func(mock.Arguments) { calls = append(calls, "cancel_attachments") }).
		Return([]string{"br-1"}, nil)
	ex.On("CancelOrders", mock.Anything, []string{"entry-1"}).
		Run(func(mock.Arguments) { calls = append(calls, "cancel_entries") }).
		Return([]string{"entry-1"}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").
		Run(func(mock.Arguments) { calls = append(calls, "list_positions") }).
		Return([]coinbase.Position{
			{ProductID: "BTC-PERP-INTX", Side: coinbase.Buy, NetSize: 1},
		}, nil)
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).Return(coinbase.Preview{}, nil)
	ex.On("CreateMarketOrder", mock.Anything, mock.Anything).Return(coinbase.Order{ID: "c1"}, nil)

	report, err := svc.CloseAllPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, CloseReport{Total: 1, Closed: 1, Failed: 0}, report)
	require.GreaterOrEqual(t, len(calls), 4)
	assert.Equal(t, []string{"list_orders", "cancel_attachments", "cancel_entries", "list_positions"}, calls[:4])
}

func TestCloseAllPositionsStepsDownLadder(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	ex.On("ListOrders", mock.Anything, "", "OPEN").Return([]coinbase.Order{}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").Return([]coinbase.Position{
		{ProductID: "BTC-PERP-INTX", Side: coinbase.Buy, NetSize: 1},
	}, nil)
	// Full size and 99% are rejected for funds; 98% goes through.
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).
		Return(coinbase.Preview{Errors: []string{"PREVIEW_INSUFFICIENT_FUNDS"}}, nil).Twice()
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).Return(coinbase.Preview{}, nil).Once()
	ex.On("CreateMarketOrder", mock.Anything, mock.MatchedBy(func(req coinbase.OrderRequest) bool {
		return req.BaseSize == "0.98"
	})).Return(coinbase.Order{ID: "c1"}, nil)

	report, err := svc.CloseAllPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
	ex.AssertExpectations(t)
}

func TestCloseAllPositionsStopsOnOtherRejection(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	ex.On("ListOrders", mock.Anything, "", "OPEN").Return([]coinbase.Order{}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").Return([]coinbase.Position{
		{ProductID: "BTC-PERP-INTX", Side: coinbase.Buy, NetSize: 1},
	}, nil)
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).
		Return(coinbase.Preview{Errors: []string{"PREVIEW_INVALID_PRODUCT"}}, nil).Once()

	report, err := svc.CloseAllPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, CloseReport{Total: 1, Closed: 0, Failed: 1}, report)
	ex.AssertNotCalled(t, "CreateMarketOrder", mock.Anything, mock.Anything)
}

func TestCloseAllPositionsScopedToProduct(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	ex.On("ListOrders", mock.Anything, "ETH-PERP-INTX", "OPEN").Return([]coinbase.Order{}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").Return([]coinbase.Position{
		{ProductID: "BTC-PERP-INTX", Side: coinbase.Buy, NetSize: 0.5},
		{ProductID: "ETH-PERP-INTX", Side: coinbase.Sell, NetSize: -3},
	}, nil)
	ex.On("PreviewMarketOrder", mock.Anything, mock.Anything).Return(coinbase.Preview{}, nil)
	ex.On("CreateMarketOrder", mock.Anything, mock.MatchedBy(func(req coinbase.OrderRequest) bool {
		return req.ProductID == "ETH-PERP-INTX"
	})).Return(coinbase.Order{ID: "c1"}, nil)

	report, err := svc.CloseAllPositions(context.Background(), "ETH-PERP-INTX")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Closed)
}

func TestCloseAllPositionsNothingOpen(t *testing.T) {
	ex := new(MockExchange)
	svc := newTestService(ex)

	ex.On("ListOrders", mock.Anything, "", "OPEN").Return([]coinbase.Order{}, nil)
	ex.On("PortfolioUUID", mock.Anything).Return("pf-1", nil)
	ex.On("ListPositions", mock.Anything, "pf-1").Return([]coinbase.Position{}, nil)

	report, err := svc.CloseAllPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	ex.AssertNotCalled(t, "CreateMarketOrder", mock.Anything, mock.Anything)
}
