package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// LifecycleState is an Asset's coarse liveness classification.
type LifecycleState string

const (
	LifecycleOnline  LifecycleState = "online"
	LifecycleIdle    LifecycleState = "idle"
	LifecycleOffline LifecycleState = "offline"
)

// AssetNodeID computes the stable node_id for an Asset: the hash of the MAC
// address if known and non-zero, else "ip@cidr".
func AssetNodeID(mac, ip, cidr string) string {
	if mac != "" && mac != "00:00:00:00:00:00" {
		return hashNodeID("mac:" + mac)
	}
	return hashNodeID(fmt.Sprintf("ip:%s@%s", ip, cidr))
}

// NetworkNodeID computes the stable node_id for a NetworkContainer: the hash
// of its normalized CIDR.
func NetworkNodeID(cidr string) string {
	return hashNodeID("cidr:" + cidr)
}

// ServiceNodeID computes the stable node_id for a Service: the hash of the
// owning asset, port, and protocol.
func ServiceNodeID(assetNodeID string, port int, proto string) string {
	return hashNodeID(fmt.Sprintf("svc:%s:%d/%s", assetNodeID, port, proto))
}

func hashNodeID(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Asset is a graph node representing a discovered host.
type Asset struct {
	NodeID      string
	Identifiers []string // IPs, MACs, hostnames
	Hostname    string
	MAC         string
	Vendor      string
	Status      LifecycleState
	Ports       []Port
	OSMatches   []OSMatch
	RTTSrttUs   int64
	Uptime      int64
}

// NetworkType classifies a NetworkContainer by inferred hosting model.
type NetworkType string

const (
	NetworkTypeCloud      NetworkType = "cloud"
	NetworkTypeOnPremises NetworkType = "on_premises"
	NetworkTypeHybrid     NetworkType = "hybrid"
	NetworkTypeUnknown    NetworkType = "unknown"
)

// NetworkContainer is a graph node representing a CIDR range.
type NetworkContainer struct {
	NodeID      string
	CIDR        string
	Name        string
	NetworkType NetworkType
}

// Service is a graph node representing one open (or formerly open) port on
// an Asset.
type Service struct {
	NodeID      string
	AssetNodeID string
	Port        int
	Proto       string
	State       string // open, closed
	Name        string
	Product     string
	Version     string
}
