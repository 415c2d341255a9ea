// Package netmeta classifies a network's hosting model (cloud / on-premises
// / hybrid) from the IP addresses observed in it, so the Graph Writer can
// populate NetworkContainer.NetworkType. Provider ranges are a small,
// fixed fallback set rather than a refreshable dataset.
package netmeta

import (
	"net"
	"sync"

	"github.com/eidolon-project/eidolon/internal/types"
)

// Detector classifies IP addresses by cloud provider and hosting model.
type Detector struct {
	mu        sync.RWMutex
	awsNets   []*net.IPNet
	azureNets []*net.IPNet
	gcpNets   []*net.IPNet
}

// NewDetector builds a Detector preloaded with a small set of well-known
// cloud provider ranges, enough to distinguish "likely cloud" from
// "likely on-premises" for classification purposes; it is not a complete or
// current provider-range dataset.
func NewDetector() *Detector {
	d := &Detector{}
	d.loadFallbackRanges()
	return d
}

func (d *Detector) loadFallbackRanges() {
	aws := []string{
		"3.0.0.0/8", "13.32.0.0/14", "18.0.0.0/8", "34.192.0.0/10",
		"35.156.0.0/14", "52.0.0.0/10", "54.0.0.0/8", "99.77.0.0/16",
	}
	azure := []string{
		"13.64.0.0/11", "20.0.0.0/8", "40.64.0.0/10", "51.104.0.0/14",
		"52.224.0.0/11", "65.52.0.0/14", "104.40.0.0/13", "137.116.0.0/14",
	}
	gcp := []string{
		"8.34.208.0/20", "34.64.0.0/10", "35.184.0.0/13", "35.192.0.0/12",
		"35.208.0.0/12", "104.196.0.0/14", "130.211.0.0/16", "146.148.0.0/17",
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.awsNets = parseNets(aws)
	d.azureNets = parseNets(azure)
	d.gcpNets = parseNets(gcp)
}

func parseNets(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		if _, ipnet, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, ipnet)
		}
	}
	return nets
}

var privateRanges = parseNets([]string{
	"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8", "169.254.0.0/16",
})

func isPrivateIP(ip net.IP) bool {
	for _, r := range privateRanges {
		if r.Contains(ip) {
			return true
		}
	}
	return false
}

// ClassifyNetwork inspects every IP address observed in a network and
// returns its hosting model: hybrid if at least one IP is private and at
// least one matches a known provider range, cloud if only provider-range
// IPs are found, on_premises if only private IPs are found, unknown if
// neither is. IPs that are neither private nor in a provider range are
// ignored.
func (d *Detector) ClassifyNetwork(ips []string) types.NetworkType {
	if len(ips) == 0 {
		return types.NetworkTypeUnknown
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var cloudCount, onPremCount int
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		switch {
		case isPrivateIP(ip):
			onPremCount++
		case d.matchesCloud(ip):
			cloudCount++
		}
	}

	switch {
	case cloudCount > 0 && onPremCount > 0:
		return types.NetworkTypeHybrid
	case cloudCount > 0:
		return types.NetworkTypeCloud
	case onPremCount > 0:
		return types.NetworkTypeOnPremises
	default:
		return types.NetworkTypeUnknown
	}
}

func (d *Detector) matchesCloud(ip net.IP) bool {
	for _, nets := range [][]*net.IPNet{d.awsNets, d.azureNets, d.gcpNets} {
		for _, n := range nets {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}
