package store

import (
	"testing"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRecordRoundTrip(t *testing.T) {
	cfg := types.ScanConfig{
		NetworkCIDRs: []string{"10.0.0.0/24", "10.0.1.0/24"},
		Ports:        []int{22, 80, 443},
		PortPreset:   types.PresetCustom,
		Options:      types.DefaultScannerOptions(),
	}

	rec, err := fromScanConfig("user-1", cfg)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, string(types.PresetCustom), rec.PortPreset)

	got, err := rec.toScanConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg.NetworkCIDRs, got.NetworkCIDRs)
	assert.Equal(t, cfg.Ports, got.Ports)
	assert.Equal(t, cfg.PortPreset, got.PortPreset)
	assert.Equal(t, cfg.Options, got.Options)
}
