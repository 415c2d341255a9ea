package api

import "github.com/eidolon-project/eidolon/internal/types"

// StartScanResponse is the body of a successful POST /collector/scan.
type StartScanResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// CancelScanRequest is the body of POST /collector/scan/cancel.
type CancelScanRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// CancelScanResponse reports the outcome of a cancel request.
type CancelScanResponse struct {
	Status string `json:"status"` // cancelled, not_found, already_terminal
}

// ErrorResponse is the body of any non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HistoryEntry summarizes one terminal task for GET /collector/scan/history.
type HistoryEntry struct {
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	EventsTotal   int    `json:"events_total"`
	FailureReason string `json:"failure_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// HistoryResponse is the body of GET /collector/scan/history.
type HistoryResponse struct {
	Scans []HistoryEntry `json:"scans"`
}

// snapshotToHistoryEntry adapts a registry snapshot to the wire shape.
func snapshotToHistoryEntry(s types.Snapshot) HistoryEntry {
	return HistoryEntry{
		TaskID:        s.TaskID,
		Status:        string(s.Status),
		EventsTotal:   s.TotalEvents,
		FailureReason: s.FailureReason,
		CreatedAt:     s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ssePayload is the "payload" field of an SSE frame.
type ssePayload struct {
	TaskID          string `json:"task_id"`
	Seq             uint64 `json:"seq"`
	Collector       string `json:"collector"`
	EventsProcessed int    `json:"events_processed"`
	TotalEvents     int    `json:"total_events,omitempty"`
	Output          string `json:"output,omitempty"`
}

// sseFrame is the JSON body carried by one `data: <json>\n\n` SSE frame.
// Clients must tolerate unknown keys.
type sseFrame struct {
	EventType string     `json:"event_type"`
	Status    string     `json:"status"`
	Payload   ssePayload `json:"payload"`
}
