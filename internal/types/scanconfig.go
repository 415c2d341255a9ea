// Package types holds the data model shared by the planner, driver, bus,
// registry, graph writer, and orchestrator: ScanConfig, ScanPlan, Task,
// ScanEvent, Asset, NetworkContainer, Service, and Subscription.
package types

import "fmt"

// PortPreset selects a canned port list or a custom one supplied by the caller.
type PortPreset string

const (
	PresetFast   PortPreset = "fast"
	PresetNormal PortPreset = "normal"
	PresetFull   PortPreset = "full"
	PresetCustom PortPreset = "custom"
)

// PortPresetPorts holds the literal port lists for the non-custom presets,
// covering the common web/db/remote-access ports so "fast"/"normal" scans
// match what operators already expect.
var PortPresetPorts = map[PortPreset][]int{
	PresetFast: {80, 443},
	PresetNormal: {
		21, 22, 23, 25, 53, 80, 110, 143, 443, 465, 587, 993, 995,
		3306, 3389, 5432, 8080, 8443,
	},
}

// ScannerOptions are the tunables that shape how aggressively a scan runs.
type ScannerOptions struct {
	PingConcurrency int  `json:"ping_concurrency" mapstructure:"ping_concurrency"`
	PortScanWorkers int  `json:"port_scan_workers" mapstructure:"port_scan_workers"`
	DNSResolution   bool `json:"dns_resolution" mapstructure:"dns_resolution"`
	Aggressive      bool `json:"aggressive" mapstructure:"aggressive"`
}

// DefaultScannerOptions returns a conservative baseline: parallel enough to
// finish quickly, restrained enough not to look like a flood.
func DefaultScannerOptions() ScannerOptions {
	return ScannerOptions{
		PingConcurrency: 128,
		PortScanWorkers: 32,
		DNSResolution:   true,
		Aggressive:      false,
	}
}

// Validate enforces the option bounds: ping_concurrency in [32,512],
// port_scan_workers in [8,64].
func (o ScannerOptions) Validate() error {
	if o.PingConcurrency < 32 || o.PingConcurrency > 512 {
		return fmt.Errorf("%w: ping_concurrency must be in [32,512], got %d", ErrInvalidOption, o.PingConcurrency)
	}
	if o.PortScanWorkers < 8 || o.PortScanWorkers > 64 {
		return fmt.Errorf("%w: port_scan_workers must be in [8,64], got %d", ErrInvalidOption, o.PortScanWorkers)
	}
	return nil
}

// ScanConfig is the validated input to the Address Planner: an ordered
// sequence of IPv4 target ranges, a port list, a preset tag, and options.
type ScanConfig struct {
	NetworkCIDRs []string       `json:"network_cidrs" mapstructure:"network_cidrs"`
	Ports        []int          `json:"ports" mapstructure:"ports"`
	PortPreset   PortPreset     `json:"port_preset" mapstructure:"port_preset"`
	Options      ScannerOptions `json:"options" mapstructure:"options"`
}

// DefaultScanConfig mirrors default_scanner_config() from the original
// implementation: a /24 over the common service ports.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		NetworkCIDRs: []string{"192.168.1.0/24"},
		Ports:        append([]int(nil), PortPresetPorts[PresetNormal]...),
		PortPreset:   PresetNormal,
		Options:      DefaultScannerOptions(),
	}
}

// Summary renders a short human-readable description of the config, used in
// scan-history listings and log lines.
func (c ScanConfig) Summary() string {
	targets := ""
	for i, cidr := range c.NetworkCIDRs {
		if i > 0 {
			targets += ", "
		}
		targets += cidr
	}

	var portLabel string
	switch {
	case c.PortPreset == PresetFull:
		portLabel = "ports 1-65535"
	case len(c.Ports) > 0:
		head := ""
		limit := len(c.Ports)
		if limit > 5 {
			limit = 5
		}
		for i := 0; i < limit; i++ {
			if i > 0 {
				head += ","
			}
			head += fmt.Sprintf("%d", c.Ports[i])
		}
		if len(c.Ports) > 5 {
			head += "..."
		}
		portLabel = "ports " + head
	default:
		portLabel = "ports none"
	}

	if targets == "" {
		return portLabel
	}
	return targets + " " + portLabel
}
