package orchestrator

import (
	"context"
	"sort"

	"github.com/eidolon-project/eidolon/internal/types"
)

// runPingStage drives the ping sweep to completion, returning the sorted
// set of host_up addresses (live_hosts), the count of host_up and
// host_down events seen, and the driver's terminal error, if any.
func (r *run) runPingStage(ctx context.Context) ([]string, int, error) {
	r.task.SetStage(types.StagePing)
	r.setProgress(len(r.plan.Hosts), 0)

	stageCtx, cancel := context.WithTimeout(ctx, r.o.PingTimeout)
	defer cancel()

	msgs, err := r.o.Driver.RunPing(stageCtx, r.plan)
	if err != nil {
		return nil, 0, err
	}

	stop := make(chan struct{})
	go r.startTicker(stop)
	defer close(stop)

	var assetEvents int
	var driverErr error
	live := make(map[string]struct{})

	for msg := range msgs {
		if msg.Err != nil {
			driverErr = msg.Err
			continue
		}
		event := msg.Event
		r.task.IncrEvents("ping")
		r.incrDone()

		switch event.Kind {
		case types.EventHostUp:
			assetEvents++
			live[event.Host.IP] = struct{}{}
			r.pingHosts[event.Host.IP] = event.Host
		case types.EventHostDown:
			assetEvents++
		}
		r.publish(event)
	}

	liveHosts := make([]string, 0, len(live))
	for ip := range live {
		liveHosts = append(liveHosts, ip)
	}
	sort.Strings(liveHosts)

	r.publish(types.ScanEvent{Kind: types.EventStageComplete, Stage: types.StagePing, LiveHosts: liveHosts})

	return liveHosts, assetEvents, driverErr
}

// runPortStage drives the port scan over liveHosts to completion, writing
// each host's combined ping+port metadata through the GraphWriter as soon
// as that host's events are fully observed.
func (r *run) runPortStage(ctx context.Context, liveHosts []string) (int, error) {
	r.task.SetStage(types.StagePort)
	r.setProgress(len(liveHosts), 0)

	stageCtx, cancel := context.WithTimeout(ctx, r.o.PortTimeout)
	defer cancel()

	msgs, err := r.o.Driver.RunPort(stageCtx, r.plan, liveHosts)
	if err != nil {
		return 0, err
	}

	stop := make(chan struct{})
	go r.startTicker(stop)
	defer close(stop)

	var assetEvents int
	var driverErr error
	var pendingIP string
	var pending types.HostInfo
	havePending := false

	flush := func() {
		if !havePending {
			return
		}
		cidr := pending.CIDR
		if err := r.o.Writer.UpsertHost(ctx, cidr, pending); err != nil {
			r.publish(types.ScanEvent{
				Kind:    types.EventLogLine,
				Level:   "error",
				Message: "graph write failed for " + pendingIP + ": " + err.Error(),
			})
			if r.o.Logger != nil {
				r.o.Logger.Warnw("graph write failed", "task_id", r.task.TaskID, "ip", pendingIP, "error", err)
			}
		}
		havePending = false
	}

	for msg := range msgs {
		if msg.Err != nil {
			driverErr = msg.Err
			continue
		}
		event := msg.Event
		r.task.IncrEvents("port")
		r.incrDone()

		switch event.Kind {
		case types.EventPortState:
			if havePending && pendingIP != event.Host.IP {
				flush()
			}
			pendingIP = event.Host.IP
			pending = mergeHostInfo(r.pingHosts[pendingIP], event.Host)
			havePending = true
			assetEvents++
		case types.EventOSMatch:
			if havePending && pendingIP == event.Host.IP {
				pending.OSMatches = event.Host.OSMatches
			}
		}
		r.publish(event)
	}
	flush()

	r.publish(types.ScanEvent{Kind: types.EventStageComplete, Stage: types.StagePort})

	return assetEvents, driverErr
}

// mergeHostInfo combines a host's ping-stage metadata (hostname, MAC,
// vendor) with its port-stage results (ports, uptime), preferring the
// port-stage value for any field both report.
func mergeHostInfo(ping, port types.HostInfo) types.HostInfo {
	merged := port
	if merged.Hostname == "" {
		merged.Hostname = ping.Hostname
	}
	if merged.MAC == "" {
		merged.MAC = ping.MAC
	}
	if merged.Vendor == "" {
		merged.Vendor = ping.Vendor
	}
	if merged.CIDR == "" {
		merged.CIDR = ping.CIDR
	}
	if merged.RTTSrttUs == 0 {
		merged.RTTSrttUs = ping.RTTSrttUs
	}
	return merged
}
