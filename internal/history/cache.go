package history

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vela/internal/logger"
	"vela/internal/market"
)

// Cache persists one JSON file per chunk key. It is an optimization only:
// every failure path degrades to a miss (or a skipped write), never an error
// surfaced to the caller.
type Cache struct {
	dir        string
	ttl        time.Duration
	liveWindow time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	StoredAt int64           `json:"stored_at"`
	Candles  []market.Candle `json:"candles"`
}

func NewCache(dir string, ttl, liveWindow time.Duration, now func() time.Time) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache dir cannot be empty")
	}
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, liveWindow: liveWindow, now: now}, nil
}

// Key derives the stable digest for a chunk. Start is rounded down to the
// enclosing hour; end likewise, unless end falls inside the live window, in
// which case the exact timestamp is used so a request touching still-open
// candles can never collide with a previously cached key.
func (c *Cache) Key(productID string, start, end time.Time, g market.Granularity) string {
	startSec := start.Unix()
	endSec := end.Unix()
	startHour := startSec - startSec%3600
	endPart := endSec
	if !c.inLiveWindow(end) {
		endPart = endSec - endSec%3600
	}
	raw := fmt.Sprintf("%s_%d_%d_%s", productID, startHour, endPart, g)
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached chunk for key, or a miss when the entry is absent,
// expired, unreadable, or when end falls inside the live window.
func (c *Cache) Get(key string, end time.Time) ([]market.Candle, bool) {
	if c.inLiveWindow(end) {
		logger.Debugf("cache: skipping live-window read key=%s", key)
		return nil, false
	}
	path := c.entryPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		logger.Warnf("cache: removing corrupt entry %s: %v", key, err)
		c.remove(path)
		return nil, false
	}
	age := c.now().Unix() - entry.StoredAt
	if age > int64(c.ttl/time.Second) {
		logger.Debugf("cache: entry expired key=%s age=%ds", key, age)
		c.remove(path)
		return nil, false
	}
	logger.Debugf("cache: hit key=%s candles=%d", key, len(entry.Candles))
	return entry.Candles, true
}

// Put persists the chunk unless its end touches the live window. The write
// goes through a temp file and rename so a concurrent reader never observes
// a partial entry; failures are logged and swallowed.
func (c *Cache) Put(key string, end time.Time, candles []market.Candle) {
	if c.inLiveWindow(end) {
		logger.Debugf("cache: skipping live-window write key=%s", key)
		return
	}
	entry := cacheEntry{StoredAt: c.now().Unix(), Candles: candles}
	data, err := json.Marshal(entry)
	if err != nil {
		logger.Errorf("cache: marshaling entry %s failed: %v", key, err)
		return
	}
	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		logger.Errorf("cache: creating temp file for %s failed: %v", key, err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		logger.Errorf("cache: writing entry %s failed: %v", key, err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		logger.Errorf("cache: closing entry %s failed: %v", key, err)
		return
	}
	if err := os.Rename(tmpName, c.entryPath(key)); err != nil {
		os.Remove(tmpName)
		logger.Errorf("cache: publishing entry %s failed: %v", key, err)
	}
}

// Clear removes every persisted entry. Idempotent.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		c.remove(filepath.Join(c.dir, e.Name()))
	}
	return nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *Cache) inLiveWindow(end time.Time) bool {
	return c.now().Sub(end) < c.liveWindow
}

// remove tolerates a concurrent reader having already deleted the file.
func (c *Cache) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("cache: removing %s failed: %v", path, err)
	}
}
