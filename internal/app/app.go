// Package app wires the configured components together and runs them.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vela/internal/config"
	"vela/internal/gateway/binance"
	"vela/internal/gateway/coinbase"
	"vela/internal/history"
	"vela/internal/logger"
	"vela/internal/market"
	"vela/internal/store/archive"
	"vela/internal/store/journal"
	"vela/internal/thresholds"
	"vela/internal/trading"
	velahttp "vela/internal/transport/http"
)

type App struct {
	cfg     *config.Config
	history *history.Service
	trading *trading.Service
	archive *archive.Store
	journal *journal.Journal
	reg     *thresholds.Registry
	httpSrv *velahttp.Server
}

// NewApp builds the application graph from cfg without starting anything.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	a := &App{cfg: cfg}

	client := coinbase.New(coinbase.Config{
		APIKey:        cfg.Coinbase.APIKey,
		APISecret:     cfg.Coinbase.APISecret,
		BaseURL:       cfg.Coinbase.BaseURL,
		PortfolioType: cfg.Coinbase.PortfolioType,
		HTTPTimeout:   secondsOrZero(cfg.Coinbase.HTTPTimeoutSeconds),
	})

	var source market.Source = client
	if cfg.Binance.Enabled {
		fallback := binance.New(binance.Config{
			RESTBaseURL: cfg.Binance.RESTBaseURL,
			HTTPTimeout: secondsOrZero(cfg.Binance.HTTPTimeoutSeconds),
		})
		source = market.NewFallbackSource(client, fallback)
	}

	histSvc, err := history.NewService(source, history.FromConfig(cfg.History))
	if err != nil {
		return nil, fmt.Errorf("building history service: %w", err)
	}
	a.history = histSvc

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("opening order journal: %w", err)
		}
		a.journal = j
	}

	var tradingJournal trading.Journal
	if a.journal != nil {
		tradingJournal = a.journal
	}
	a.trading = trading.NewService(client, tradingJournal, trading.FromConfig(cfg.Trading))

	if cfg.Archive.Enabled {
		store, err := archive.NewStore(cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening candle archive: %w", err)
		}
		a.archive = store
	}

	if cfg.Thresholds.Path != "" {
		reg, err := thresholds.NewRegistry(cfg.Thresholds.Path)
		if err != nil {
			return nil, fmt.Errorf("loading thresholds: %w", err)
		}
		a.reg = reg
	}

	httpSrv, err := velahttp.NewServer(velahttp.Config{
		Addr:       cfg.App.HTTPAddr,
		History:    a.history,
		Trading:    a.trading,
		Archive:    a.archive,
		Journal:    a.journal,
		Thresholds: a.reg,
	})
	if err != nil {
		return nil, fmt.Errorf("building http server: %w", err)
	}
	a.httpSrv = httpSrv
	return a, nil
}

// Run serves until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.httpSrv.Run(ctx)
	})
	err := group.Wait()
	a.close()
	return err
}

func (a *App) close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warnf("app: closing archive: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("app: closing journal: %v", err)
		}
	}
}
