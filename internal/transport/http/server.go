// Package http exposes the bot's operational surface over a small Gin API:
// candle queries, regime analysis, cache and archive management, position
// closing and the order journal.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vela/internal/analysis/trend"
	"vela/internal/history"
	"vela/internal/logger"
	"vela/internal/market"
	"vela/internal/store/archive"
	"vela/internal/store/journal"
	"vela/internal/thresholds"
	"vela/internal/trading"
)

type Server struct {
	addr    string
	history *history.Service
	trading *trading.Service
	archive *archive.Store
	journal *journal.Journal
	reg     *thresholds.Registry
	router  *gin.Engine
	httpSrv *http.Server
}

type Config struct {
	Addr       string
	History    *history.Service
	Trading    *trading.Service
	Archive    *archive.Store
	Journal    *journal.Journal
	Thresholds *thresholds.Registry
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.History == nil {
		return nil, errors.New("history service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:    cfg.Addr,
		history: cfg.History,
		trading: cfg.Trading,
		archive: cfg.Archive,
		journal: cfg.Journal,
		reg:     cfg.Thresholds,
		router:  router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/api/candles", s.handleCandles)
	s.router.GET("/api/analysis", s.handleAnalysis)
	s.router.POST("/api/cache/clear", s.handleCacheClear)
	if s.archive != nil {
		s.router.GET("/api/archive/manifest", s.handleManifest)
		s.router.POST("/api/archive/sync", s.handleSync)
	}
	if s.trading != nil {
		s.router.POST("/api/orders/cancel", s.handleCancelOrders)
		s.router.POST("/api/positions/close", s.handleClosePositions)
	}
	if s.journal != nil {
		s.router.GET("/api/journal/orders", s.handleJournal)
	}
	if s.reg != nil {
		s.router.GET("/api/thresholds", s.handleThresholds)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

// candleWindow parses the shared product/granularity/range query parameters.
func candleWindow(c *gin.Context) (string, time.Time, time.Time, market.Granularity, bool) {
	product := c.Query("product_id")
	if product == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id is required"})
		return "", time.Time{}, time.Time{}, "", false
	}
	g, err := market.ParseGranularity(c.DefaultQuery("granularity", string(market.OneHour)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", time.Time{}, time.Time{}, "", false
	}
	endTS, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	end := time.Now().UTC()
	if endTS > 0 {
		end = time.Unix(endTS, 0).UTC()
	}
	startTS, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	start := end.Add(-24 * time.Hour)
	if startTS > 0 {
		start = time.Unix(startTS, 0).UTC()
	}
	if !end.After(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_ts must precede end_ts"})
		return "", time.Time{}, time.Time{}, "", false
	}
	return product, start, end, g, true
}

func (s *Server) handleCandles(c *gin.Context) {
	product, start, end, g, ok := candleWindow(c)
	if !ok {
		return
	}
	candles, err := s.history.GetHistoricalData(c.Request.Context(), product, start, end, g)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": product, "granularity": g, "count": len(candles), "candles": candles})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	product, start, end, g, ok := candleWindow(c)
	if !ok {
		return
	}
	candles, err := s.history.GetHistoricalData(c.Request.Context(), product, start, end, g)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	downtrend, downMetrics := trend.DetectClearDowntrend(candles)
	oversold, osMetrics := trend.DetectOversoldReversal(candles)
	resp := gin.H{
		"product_id":        product,
		"count":             len(candles),
		"downtrend":         downtrend,
		"downtrend_metrics": downMetrics,
		"oversold":          oversold,
		"oversold_metrics":  osMetrics,
	}
	if s.reg != nil {
		resp["thresholds"] = s.reg.For(product)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCacheClear(c *gin.Context) {
	if err := s.history.ClearCache(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

func (s *Server) handleManifest(c *gin.Context) {
	product := c.Query("product_id")
	g, err := market.ParseGranularity(c.DefaultQuery("granularity", string(market.OneHour)))
	if product == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id and granularity are required"})
		return
	}
	m, err := s.archive.Manifest(c.Request.Context(), product, g)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": m})
}

// handleSync pulls a range through the history pipeline and persists it into
// the archive.
func (s *Server) handleSync(c *gin.Context) {
	var req struct {
		ProductID   string `json:"product_id" binding:"required"`
		Granularity string `json:"granularity" binding:"required"`
		StartTS     int64  `json:"start_ts" binding:"required"`
		EndTS       int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g, err := market.ParseGranularity(req.Granularity)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	candles, err := s.history.GetHistoricalData(c.Request.Context(), req.ProductID,
		time.Unix(req.StartTS, 0).UTC(), time.Unix(req.EndTS, 0).UTC(), g)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	n, err := s.archive.InsertCandles(c.Request.Context(), req.ProductID, g, candles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fetched": len(candles), "archived": n})
}

func (s *Server) handleCancelOrders(c *gin.Context) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	_ = c.ShouldBindJSON(&req)
	n, err := s.trading.CancelAllOrders(c.Request.Context(), req.ProductID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": n})
}

func (s *Server) handleClosePositions(c *gin.Context) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	_ = c.ShouldBindJSON(&req)
	report, err := s.trading.CloseAllPositions(c.Request.Context(), req.ProductID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (s *Server) handleJournal(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	recs, err := s.journal.List(c.Request.Context(), c.Query("product_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": recs})
}

func (s *Server) handleThresholds(c *gin.Context) {
	snap := s.reg.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"version":  snap.Version,
		"defaults": snap.Defaults,
		"products": snap.Products,
	})
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http: listening on %s", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }
