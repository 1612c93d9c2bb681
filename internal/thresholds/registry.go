// Package thresholds manages the per-product signal thresholds file. The file
// is schema-validated, hot-reloaded on change, and exposed as immutable
// snapshots so strategy code never observes a half-applied edit.
package thresholds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"vela/internal/logger"
)

// Thresholds are the signal knobs for one product.
type Thresholds struct {
	ModerateATRPercent float64 `yaml:"moderate_atr_percent" json:"moderate_atr_percent"`
	StrongATRPercent   float64 `yaml:"strong_atr_percent" json:"strong_atr_percent"`
	OversoldRSI        float64 `yaml:"oversold_rsi" json:"oversold_rsi"`
	MinATRPercent      float64 `yaml:"min_atr_percent" json:"min_atr_percent"`
}

// FileConfig maps the thresholds YAML file.
type FileConfig struct {
	Defaults Thresholds            `yaml:"defaults"`
	Products map[string]Thresholds `yaml:"products"`
}

// Snapshot is one immutable view of the thresholds file. Version increases
// on every successful reload.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Defaults Thresholds
	Products map[string]Thresholds
}

// ChangeListener runs after every successful reload.
type ChangeListener func(Snapshot)

type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

const schemaJSON = `{
	"type": "object",
	"properties": {
		"defaults": {"$ref": "#/$defs/thresholds"},
		"products": {
			"type": "object",
			"additionalProperties": {"$ref": "#/$defs/thresholds"}
		}
	},
	"$defs": {
		"thresholds": {
			"type": "object",
			"properties": {
				"moderate_atr_percent": {"type": "number", "minimum": 0},
				"strong_atr_percent": {"type": "number", "minimum": 0},
				"oversold_rsi": {"type": "number", "minimum": 0, "maximum": 100},
				"min_atr_percent": {"type": "number", "minimum": 0}
			},
			"additionalProperties": false
		}
	}
}`

var schema = jsonschema.MustCompileString("thresholds.json", schemaJSON)

// NewRegistry loads the thresholds file and watches it for edits.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("thresholds registry requires a path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading thresholds file: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("thresholds reload failed, keeping previous snapshot: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current thresholds.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// For returns the thresholds for a product, falling back to the defaults.
func (r *Registry) For(productID string) Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.snapshot.Products[strings.TrimSpace(productID)]; ok {
		return t
	}
	return r.snapshot.Defaults
}

// Subscribe registers a listener for future reloads.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readThresholdsFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Defaults: cfg.Defaults.withDefaults(),
		Products: cfg.Products,
	}
	r.mu.Unlock()
	logger.Infof("thresholds: loaded %d product overrides from %s", len(cfg.Products), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("thresholds listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (t Thresholds) withDefaults() Thresholds {
	if t.OversoldRSI <= 0 {
		t.OversoldRSI = 30
	}
	if t.MinATRPercent <= 0 {
		t.MinATRPercent = 0.7
	}
	return t
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.Products = make(map[string]Thresholds, len(src.Products))
	for id, t := range src.Products {
		dst.Products[id] = t
	}
	return dst
}

func readThresholdsFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("reading thresholds file: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return FileConfig{}, fmt.Errorf("parsing thresholds file: %w", err)
	}
	if err := validateSchema(generic); err != nil {
		return FileConfig{}, fmt.Errorf("thresholds file rejected by schema: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parsing thresholds file: %w", err)
	}
	return cfg, nil
}

// validateSchema round-trips the YAML document through JSON so the compiled
// schema can check it.
func validateSchema(doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var jsonDoc any
	if err := json.Unmarshal(raw, &jsonDoc); err != nil {
		return err
	}
	return schema.Validate(jsonDoc)
}
