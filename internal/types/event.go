package types

import "time"

// EventKind discriminates ScanEvent's tagged union. Every consumer should
// switch exhaustively on Kind rather than testing individual payload fields,
// so a payload field that does not belong to the event's Kind is never read.
type EventKind string

const (
	EventHostUp        EventKind = "host_up"
	EventHostDown      EventKind = "host_down"
	EventPortState     EventKind = "port_state"
	EventOSMatch       EventKind = "os_match"
	EventProgressTick  EventKind = "progress_tick"
	EventStageComplete EventKind = "stage_complete"
	EventLogLine       EventKind = "log_line"
)

// Port describes one observed port state for a host.
type Port struct {
	Port    int    `json:"port"`
	Proto   string `json:"proto"`
	State   string `json:"state"` // open, closed, filtered
	Service string `json:"service,omitempty"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// OSMatch describes one nmap OS-detection guess.
type OSMatch struct {
	Name     string `json:"name"`
	Accuracy int    `json:"accuracy"`
	Family   string `json:"family,omitempty"`
}

// HostInfo carries everything the parser extracted about a single host from
// one <host> XML element: identifiers, ports (port stage only), and OS
// guesses (aggressive port stage only).
type HostInfo struct {
	IP         string
	Hostname   string
	MAC        string
	Vendor     string
	CIDR       string
	Ports      []Port
	OSMatches  []OSMatch
	RTTSrttUs  int64
	Uptime     int64
	DNSResolve bool
}

// ScanEvent is the parser's output and the Bus's payload: a tagged union
// over host_up/host_down/port_state/os_match/progress_tick/stage_complete/
// log_line, carrying the owning task_id and a monotonically increasing
// sequence number within that task.
type ScanEvent struct {
	Kind      EventKind
	TaskID    string
	Seq       uint64
	Stage     Stage
	Timestamp time.Time

	Host HostInfo // valid for HostUp, HostDown, PortState, OSMatch

	// ProgressTick fields.
	HostsTotal int
	HostsDone  int

	// StageComplete fields.
	LiveHosts []string // valid only for StagePing's stage_complete

	// LogLine fields.
	Message string
	Level   string // info, warn, error
}

// WithSeqAndTime returns a copy of e stamped with the given task id, sequence
// number, and timestamp — used by the Orchestrator when re-publishing a
// parser event under the task's own sequence.
func (e ScanEvent) WithSeqAndTime(taskID string, seq uint64, ts time.Time) ScanEvent {
	e.TaskID = taskID
	e.Seq = seq
	e.Timestamp = ts
	return e
}
