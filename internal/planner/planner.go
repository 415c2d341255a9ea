// Package planner converts a ScanConfig into a finite, deduplicated
// ScanPlan: a set of target hosts and a port list, rejecting overlapping or
// malformed targets before any subprocess is spawned.
package planner

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/eidolon-project/eidolon/internal/types"
)

const (
	maxTargets = 50
	maxPorts   = 1000
)

// Plan validates cfg and, if valid, returns the derived ScanPlan. All error
// kinds are reported before any subprocess is spawned.
func Plan(cfg types.ScanConfig) (*types.ScanPlan, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}

	targets := normalizeTargets(cfg.NetworkCIDRs)
	if len(targets) == 0 {
		return nil, types.NewValidationError(types.ErrEmptyTargets, "at least one target is required")
	}
	if len(targets) > maxTargets {
		return nil, types.NewValidationError(types.ErrTooManyTargets, "maximum of 50 targets allowed")
	}

	ranges := make([]types.HostRange, 0, len(targets))
	for _, target := range targets {
		start, end, cidr, err := parseTarget(target)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, types.HostRange{Start: start, End: end, Source: target, CIDR: cidr})
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].Start <= ranges[i-1].End {
			return nil, types.NewValidationError(types.ErrOverlappingTargets,
				ranges[i].Source+" overlaps "+ranges[i-1].Source)
		}
	}

	ports, err := resolvePorts(cfg.PortPreset, cfg.Ports)
	if err != nil {
		return nil, err
	}

	hosts := expandHosts(ranges)

	return &types.ScanPlan{
		Hosts:   hosts,
		Ranges:  ranges,
		Ports:   ports,
		Preset:  cfg.PortPreset,
		Options: cfg.Options,
	}, nil
}

func normalizeTargets(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// parseTarget handles all three target forms: single address, dash range
// (A.B.C.D-N inherits the left side's first three octets when N has no
// dots), and CIDR (masked network/broadcast as inclusive bounds).
func parseTarget(target string) (start, end uint32, cidr string, err error) {
	switch {
	case strings.Contains(target, "/"):
		return parseCIDRTarget(target)
	case strings.Contains(target, "-"):
		return parseRangeTarget(target)
	default:
		return parseSingleTarget(target)
	}
}

func parseSingleTarget(target string) (uint32, uint32, string, error) {
	ip := net.ParseIP(target).To4()
	if ip == nil {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
	}
	v := ipToUint32Local(ip)
	return v, v, target + "/32", nil
}

func parseRangeTarget(target string) (uint32, uint32, string, error) {
	parts := strings.SplitN(target, "-", 2)
	if len(parts) != 2 {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
	}
	startStr, endStr := parts[0], parts[1]

	startIP := net.ParseIP(startStr).To4()
	if startIP == nil {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
	}

	var endIP net.IP
	if strings.Contains(endStr, ".") {
		endIP = net.ParseIP(endStr).To4()
	} else {
		octets := strings.Split(startStr, ".")
		if len(octets) != 4 {
			return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
		}
		endIP = net.ParseIP(strings.Join(append(octets[:3], endStr), ".")).To4()
	}
	if endIP == nil {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
	}

	start := ipToUint32Local(startIP)
	end := ipToUint32Local(endIP)
	if end < start {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, "range end must be >= start: "+target)
	}
	return start, end, startStr + "/32", nil
}

func parseCIDRTarget(target string) (uint32, uint32, string, error) {
	_, ipNet, err := net.ParseCIDR(target)
	if err != nil || ipNet.IP.To4() == nil {
		return 0, 0, "", types.NewValidationError(types.ErrInvalidTarget, target)
	}
	network := ipNet.IP.To4()
	broadcast := make(net.IP, len(network))
	for i := range network {
		broadcast[i] = network[i] | ^ipNet.Mask[i]
	}
	return ipToUint32Local(network), ipToUint32Local(broadcast), ipNet.String(), nil
}

func ipToUint32Local(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func uint32ToIP(v uint32) string {
	return types.Uint32ToIP(v)
}

// expandHosts returns the ordered, deduplicated union of all host addresses
// across ranges. Ranges arrive pre-sorted and non-overlapping from Plan.
func expandHosts(ranges []types.HostRange) []string {
	var total uint64
	for _, r := range ranges {
		total += uint64(r.End-r.Start) + 1
	}
	hosts := make([]string, 0, total)
	for _, r := range ranges {
		for v := r.Start; ; v++ {
			hosts = append(hosts, uint32ToIP(v))
			if v == r.End {
				break
			}
		}
	}
	return hosts
}

// resolvePorts expands a preset or validates a custom port list (non-empty
// unless preset is full, ≤1000 entries, unique, 1..65535).
func resolvePorts(preset types.PortPreset, ports []int) ([]int, error) {
	switch preset {
	case types.PresetFast, types.PresetNormal:
		return append([]int(nil), types.PortPresetPorts[preset]...), nil
	case types.PresetFull:
		return nil, nil
	case types.PresetCustom:
		return validateCustomPorts(ports)
	default:
		return nil, types.NewValidationError(types.ErrInvalidPort, "unknown preset "+string(preset))
	}
}

func validateCustomPorts(ports []int) ([]int, error) {
	if len(ports) == 0 {
		return nil, types.NewValidationError(types.ErrEmptyTargets, "custom ports are required")
	}
	if len(ports) > maxPorts {
		return nil, types.NewValidationError(types.ErrTooManyPorts, "maximum of 1000 ports allowed")
	}
	seen := make(map[int]bool, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, types.NewValidationError(types.ErrInvalidPort, strconv.Itoa(p))
		}
		if seen[p] {
			return nil, types.NewValidationError(types.ErrDuplicatePort, strconv.Itoa(p))
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}
