// Package graph persists discovered hosts into a Neo4j-shaped property
// graph: one Asset node per host, one NetworkContainer per CIDR, one
// Service node per observed port, connected by CONTAINS and HAS_SERVICE
// edges. Every write is an idempotent MERGE keyed by a stable node_id, so
// re-scanning the same network updates rather than duplicates a node.
package graph

import (
	"context"
	"fmt"

	"github.com/eidolon-project/eidolon/internal/netmeta"
	"github.com/eidolon-project/eidolon/internal/types"
	"go.uber.org/zap"
)

// concurrentWrites bounds how many host-scoped transactions may be open
// against the graph at once, independent of how many scans are running.
const concurrentWrites = 8

// Writer commits one host's observations (identity, hosting network,
// services) per call, closing services from a prior scan that this scan no
// longer observes rather than deleting them.
type Writer struct {
	newSession SessionFactory
	detector   *netmeta.Detector
	sem        chan struct{}
	logger     *zap.SugaredLogger
}

// NewWriter builds a Writer. detector may be nil, in which case
// NetworkContainer.NetworkType is left types.NetworkTypeUnknown.
func NewWriter(newSession SessionFactory, detector *netmeta.Detector, logger *zap.SugaredLogger) *Writer {
	return &Writer{
		newSession: newSession,
		detector:   detector,
		sem:        make(chan struct{}, concurrentWrites),
		logger:     logger,
	}
}

// UpsertHost commits everything currently known about one host: its Asset
// node, the NetworkContainer for cidr, and a Service node per entry in
// host.Ports. It is safe to call once per host per stage. On a later call
// for the same host, identifiers are unioned with those already stored and
// the other Asset properties are overwritten with this call's values. OS
// matches are not written to the graph.
func (w *Writer) UpsertHost(ctx context.Context, cidr string, host types.HostInfo) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	asset := w.buildAsset(cidr, host)
	network := w.buildNetwork(cidr, host)
	services := buildServices(asset.NodeID, host.Ports)

	return withRetry(ctx, func() error {
		return w.writeHost(ctx, network, asset, services)
	})
}

func (w *Writer) buildAsset(cidr string, host types.HostInfo) types.Asset {
	identifiers := []string{host.IP}
	if host.Hostname != "" {
		identifiers = append(identifiers, host.Hostname)
	}
	if host.MAC != "" {
		identifiers = append(identifiers, host.MAC)
	}
	return types.Asset{
		NodeID:      types.AssetNodeID(host.MAC, host.IP, cidr),
		Identifiers: identifiers,
		Hostname:    host.Hostname,
		MAC:         host.MAC,
		Vendor:      host.Vendor,
		Status:      types.LifecycleOnline,
		Ports:       host.Ports,
		OSMatches:   host.OSMatches,
		RTTSrttUs:   host.RTTSrttUs,
		Uptime:      host.Uptime,
	}
}

func (w *Writer) buildNetwork(cidr string, host types.HostInfo) types.NetworkContainer {
	networkType := types.NetworkTypeUnknown
	if w.detector != nil {
		networkType = w.detector.ClassifyNetwork([]string{host.IP})
	}
	return types.NetworkContainer{
		NodeID:      types.NetworkNodeID(cidr),
		CIDR:        cidr,
		NetworkType: networkType,
	}
}

func buildServices(assetNodeID string, ports []types.Port) []types.Service {
	services := make([]types.Service, 0, len(ports))
	for _, p := range ports {
		services = append(services, types.Service{
			NodeID:      types.ServiceNodeID(assetNodeID, p.Port, p.Proto),
			AssetNodeID: assetNodeID,
			Port:        p.Port,
			Proto:       p.Proto,
			State:       p.State,
			Name:        p.Service,
			Product:     p.Product,
			Version:     p.Version,
		})
	}
	return services
}

func (w *Writer) writeHost(ctx context.Context, network types.NetworkContainer, asset types.Asset, services []types.Service) error {
	session := w.newSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx Tx) (any, error) {
		if err := upsertNetwork(ctx, tx, network); err != nil {
			return nil, fmt.Errorf("upsert network: %w", err)
		}
		if err := upsertAsset(ctx, tx, asset, network.NodeID); err != nil {
			return nil, fmt.Errorf("upsert asset: %w", err)
		}
		observedPorts := make([]string, 0, len(services))
		for _, svc := range services {
			if err := upsertService(ctx, tx, svc); err != nil {
				return nil, fmt.Errorf("upsert service %d/%s: %w", svc.Port, svc.Proto, err)
			}
			observedPorts = append(observedPorts, fmt.Sprintf("%d/%s", svc.Port, svc.Proto))
		}
		if err := closeStaleServices(ctx, tx, asset.NodeID, observedPorts); err != nil {
			return nil, fmt.Errorf("close stale services: %w", err)
		}
		return nil, nil
	})
	return err
}

const upsertNetworkCypher = `
MERGE (n:NetworkContainer {node_id: $node_id})
ON CREATE SET n.created_at = datetime()
SET n.cidr = $cidr, n.network_type = $network_type, n.updated_at = datetime()`

func upsertNetwork(ctx context.Context, tx Tx, network types.NetworkContainer) error {
	return tx.Run(ctx, upsertNetworkCypher, map[string]any{
		"node_id":      network.NodeID,
		"cidr":         network.CIDR,
		"network_type": string(network.NetworkType),
	})
}

const upsertAssetCypher = `
MERGE (a:Asset {node_id: $node_id})
ON CREATE SET a.created_at = datetime()
SET a.identifiers = coalesce(a.identifiers, []) +
      [x IN $identifiers WHERE NOT x IN coalesce(a.identifiers, [])],
    a.hostname = $hostname,
    a.mac = $mac,
    a.vendor = $vendor,
    a.status = $status,
    a.rtt_srtt_us = $rtt_srtt_us,
    a.uptime = $uptime,
    a.updated_at = datetime()
WITH a
MATCH (n:NetworkContainer {node_id: $network_id})
MERGE (n)-[:CONTAINS]->(a)`

func upsertAsset(ctx context.Context, tx Tx, asset types.Asset, networkID string) error {
	return tx.Run(ctx, upsertAssetCypher, map[string]any{
		"node_id":     asset.NodeID,
		"identifiers": asset.Identifiers,
		"hostname":    asset.Hostname,
		"mac":         asset.MAC,
		"vendor":      asset.Vendor,
		"status":      string(asset.Status),
		"rtt_srtt_us": asset.RTTSrttUs,
		"uptime":      asset.Uptime,
		"network_id":  networkID,
	})
}

const upsertServiceCypher = `
MERGE (s:Service {node_id: $node_id})
ON CREATE SET s.created_at = datetime()
SET s.port = $port, s.proto = $proto, s.state = $state,
    s.name = $name, s.product = $product, s.version = $version,
    s.updated_at = datetime()
WITH s
MATCH (a:Asset {node_id: $asset_id})
MERGE (a)-[:HAS_SERVICE]->(s)`

func upsertService(ctx context.Context, tx Tx, svc types.Service) error {
	return tx.Run(ctx, upsertServiceCypher, map[string]any{
		"node_id":  svc.NodeID,
		"port":     svc.Port,
		"proto":    svc.Proto,
		"state":    svc.State,
		"name":     svc.Name,
		"product":  svc.Product,
		"version":  svc.Version,
		"asset_id": svc.AssetNodeID,
	})
}

const closeStaleServicesCypher = `
MATCH (a:Asset {node_id: $asset_id})-[:HAS_SERVICE]->(s:Service)
WHERE NOT (toString(s.port) + '/' + s.proto) IN $observed_ports AND s.state <> 'closed'
SET s.state = 'closed', s.updated_at = datetime()`

// closeStaleServices marks every Service attached to assetID that this scan
// did not observe as closed, without deleting it: a port's history of being
// open remains queryable after the service stops answering.
func closeStaleServices(ctx context.Context, tx Tx, assetID string, observedPorts []string) error {
	return tx.Run(ctx, closeStaleServicesCypher, map[string]any{
		"asset_id":       assetID,
		"observed_ports": observedPorts,
	})
}
