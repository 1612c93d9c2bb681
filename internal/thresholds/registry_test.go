package thresholds

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `
defaults:
  moderate_atr_percent: 0.45
  strong_atr_percent: 0.8
  oversold_rsi: 30
  min_atr_percent: 0.7
products:
  BTC-PERP-INTX:
    moderate_atr_percent: 0.6
    strong_atr_percent: 1.1
    oversold_rsi: 25
    min_atr_percent: 0.9
`

func writeThresholds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsAndResolves(t *testing.T) {
	r, err := NewRegistry(writeThresholds(t, sampleFile))
	require.NoError(t, err)

	btc := r.For("BTC-PERP-INTX")
	assert.Equal(t, 0.6, btc.ModerateATRPercent)
	assert.Equal(t, 25.0, btc.OversoldRSI)

	other := r.For("ETH-PERP-INTX")
	assert.Equal(t, 0.45, other.ModerateATRPercent, "unknown products fall back to defaults")

	snap := r.Snapshot()
	assert.EqualValues(t, 1, snap.Version)
	assert.Len(t, snap.Products, 1)
}

func TestRegistryRejectsUnknownFields(t *testing.T) {
	path := writeThresholds(t, "defaults:\n  oversold_rsi: 30\n  mystery_knob: 1\n")
	_, err := NewRegistry(path)
	require.Error(t, err)
}

func TestRegistryRejectsOutOfRangeValues(t *testing.T) {
	path := writeThresholds(t, "defaults:\n  oversold_rsi: 250\n")
	_, err := NewRegistry(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestRegistryAppliesDefaults(t *testing.T) {
	r, err := NewRegistry(writeThresholds(t, "defaults:\n  moderate_atr_percent: 0.5\n"))
	require.NoError(t, err)

	d := r.For("ANY")
	assert.Equal(t, 30.0, d.OversoldRSI)
	assert.Equal(t, 0.7, d.MinATRPercent)
}

func TestRegistryHotReload(t *testing.T) {
	path := writeThresholds(t, sampleFile)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	reloaded := make(chan Snapshot, 1)
	r.Subscribe(func(s Snapshot) {
		select {
		case reloaded <- s:
		default:
		}
	})

	updated := `
defaults:
  moderate_atr_percent: 0.99
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		return r.For("ANY").ModerateATRPercent == 0.99
	}, 5*time.Second, 20*time.Millisecond)

	select {
	case snap := <-reloaded:
		assert.Greater(t, snap.Version, int64(1))
	case <-time.After(5 * time.Second):
		t.Fatal("listener was not notified")
	}
}
