package planner

import (
	"errors"
	"testing"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customConfig(cidrs []string, ports []int) types.ScanConfig {
	return types.ScanConfig{
		NetworkCIDRs: cidrs,
		Ports:        ports,
		PortPreset:   types.PresetCustom,
		Options:      types.DefaultScannerOptions(),
	}
}

func TestPlan_SingleHost(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.5/32"}, []int{22, 80}))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5"}, plan.Hosts)
	assert.Equal(t, []int{22, 80}, plan.Ports)
}

func TestPlan_DashRangeInheritsOctets(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.1-3"}, []int{22}))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, plan.Hosts)
}

func TestPlan_CIDRExpandsToNetworkBroadcastInclusive(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.0/30"}, []int{22}))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3"}, plan.Hosts)
}

func TestPlan_NoDuplicateHostsAcrossRanges(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.0/30", "10.0.0.4/30"}, []int{22}))
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, h := range plan.Hosts {
		assert.False(t, seen[h], "duplicate host %s", h)
		seen[h] = true
	}
	assert.Len(t, plan.Hosts, 8)
}

func TestPlan_OverlappingTargetsRejected(t *testing.T) {
	_, err := Plan(customConfig([]string{"10.0.0.0/24", "10.0.0.128/25"}, []int{22}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrOverlappingTargets))
}

func TestPlan_EmptyTargetsRejected(t *testing.T) {
	_, err := Plan(customConfig(nil, []int{22}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrEmptyTargets))
}

func TestPlan_TooManyTargetsRejected(t *testing.T) {
	cidrs := make([]string, 51)
	for i := range cidrs {
		cidrs[i] = types.Uint32ToIP(uint32(i)+1) + "/32"
	}
	_, err := Plan(customConfig(cidrs, []int{22}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTooManyTargets))
}

func TestPlan_InvalidTargetRejected(t *testing.T) {
	_, err := Plan(customConfig([]string{"not-an-ip"}, []int{22}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidTarget))
}

func TestPlan_DuplicatePortRejected(t *testing.T) {
	_, err := Plan(customConfig([]string{"10.0.0.1/32"}, []int{22, 22}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDuplicatePort))
}

func TestPlan_InvalidPortRejected(t *testing.T) {
	_, err := Plan(customConfig([]string{"10.0.0.1/32"}, []int{70000}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidPort))
}

func TestPlan_TooManyPortsRejected(t *testing.T) {
	ports := make([]int, 1001)
	for i := range ports {
		ports[i] = i + 1
	}
	_, err := Plan(customConfig([]string{"10.0.0.1/32"}, ports))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTooManyPorts))
}

func TestPlan_EmptyCustomPortsRejected(t *testing.T) {
	_, err := Plan(customConfig([]string{"10.0.0.1/32"}, nil))
	require.Error(t, err)
}

func TestPlan_FullPresetScansAllPorts(t *testing.T) {
	cfg := types.ScanConfig{
		NetworkCIDRs: []string{"10.0.0.1/32"},
		PortPreset:   types.PresetFull,
		Options:      types.DefaultScannerOptions(),
	}
	plan, err := Plan(cfg)
	require.NoError(t, err)
	assert.Empty(t, plan.Ports)
}

func TestPlan_FastPresetUsesLiteralPorts(t *testing.T) {
	cfg := types.ScanConfig{
		NetworkCIDRs: []string{"10.0.0.1/32"},
		PortPreset:   types.PresetFast,
		Options:      types.DefaultScannerOptions(),
	}
	plan, err := Plan(cfg)
	require.NoError(t, err)
	assert.Equal(t, []int{80, 443}, plan.Ports)
}

func TestPlan_InvalidOptionsRejected(t *testing.T) {
	cfg := customConfig([]string{"10.0.0.1/32"}, []int{22})
	cfg.Options.PingConcurrency = 1
	_, err := Plan(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidOption))
}

func TestPlan_HostsSetEqualsUnionOfRanges(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.0/29"}, []int{22}))
	require.NoError(t, err)
	want := map[string]bool{}
	for i := 0; i < 8; i++ {
		want[types.Uint32ToIP(0x0A000000+uint32(i))] = true
	}
	got := map[string]bool{}
	for _, h := range plan.Hosts {
		got[h] = true
	}
	assert.Equal(t, want, got)
}

func TestPlan_CIDRForHost(t *testing.T) {
	plan, err := Plan(customConfig([]string{"10.0.0.0/30", "10.0.1.0/30"}, []int{22}))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/30", plan.CIDRForHost("10.0.0.1"))
	assert.Equal(t, "10.0.1.0/30", plan.CIDRForHost("10.0.1.2"))
}
