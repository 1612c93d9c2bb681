package coinbase

import (
	"strings"
	"time"
)

// Config carries the Advanced Trade REST credentials and endpoint knobs.
type Config struct {
	APIKey      string
	APISecret   string
	BaseURL     string
	HTTPTimeout time.Duration
	// PortfolioType selects which portfolio perpetual calls operate on.
	PortfolioType string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.coinbase.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if strings.TrimSpace(c.PortfolioType) == "" {
		c.PortfolioType = "INTX"
	}
	return c
}
