package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vela/internal/history"
	"vela/internal/market"
)

type stubSource struct{}

func (stubSource) Candles(_ context.Context, _ string, start, end time.Time, g market.Granularity) ([]market.Candle, error) {
	step := int64(g.Duration() / time.Second)
	var out []market.Candle
	for ts := start.Unix(); ts < end.Unix(); ts += step {
		out = append(out, market.Candle{Start: ts, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1})
	}
	return out, nil
}

func (stubSource) Name() string { return "stub" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc, err := history.NewService(stubSource{}, history.Config{
		CacheDir: t.TempDir(),
		Sleep:    func(time.Duration) {},
	})
	require.NoError(t, err)
	srv, err := NewServer(Config{History: svc})
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestCandlesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	end := time.Now().Add(-2 * time.Hour).Unix()
	start := end - 4*3600

	w := doRequest(t, srv, http.MethodGet,
		"/api/candles?product_id=BTC-PERP-INTX&granularity=one_hour&start_ts="+
			itoa(start)+"&end_ts="+itoa(end))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count   int             `json:"count"`
		Candles []market.Candle `json:"candles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Count)
	require.Len(t, resp.Candles, 4)
	assert.Equal(t, start, resp.Candles[0].Start)
}

func TestCandlesValidation(t *testing.T) {
	srv := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/candles")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/candles?product_id=X&granularity=TWO_WEEK")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/candles?product_id=X&start_ts=200&end_ts=100")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalysisEndpoint(t *testing.T) {
	srv := newTestServer(t)
	end := time.Now().Add(-2 * time.Hour).Unix()
	start := end - 100*3600

	w := doRequest(t, srv, http.MethodGet,
		"/api/analysis?product_id=BTC-PERP-INTX&granularity=ONE_HOUR&start_ts="+
			itoa(start)+"&end_ts="+itoa(end))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Downtrend bool `json:"downtrend"`
		Oversold  bool `json:"oversold"`
		Count     int  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Count)
	assert.False(t, resp.Downtrend, "flat synthetic market is not a downtrend")
}

func TestCacheClearEndpoint(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodPost, "/api/cache/clear")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":true`)
}

func TestTradingRoutesAbsentWithoutService(t *testing.T) {
	w := doRequest(t, newTestServer(t), http.MethodPost, "/api/positions/close")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
