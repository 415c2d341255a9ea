package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 15 * time.Second

// streamHandler serves GET /tasks/stream. The bus topics by task_id, not
// user_id, so "every task belonging to this user" has no direct
// subscription: this subscribes to the wildcard topic and filters each
// event by task ownership via the registry. A client that only cares
// about one task can pass ?task_id=... to subscribe to just that topic.
func (s *Server) streamHandler(c *gin.Context) {
	uid := userID(c)
	taskID := c.Query("task_id")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}

	sub := s.bus.Subscribe(taskID)
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-sub.C:
			if !open {
				return
			}
			if taskID == "" && !s.ownedByUser(event.TaskID, uid) {
				continue
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", s.encodeFrame(event)); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ownedByUser reports whether taskID belongs to userID, consulting the
// registry's retained task records. A task that has already aged out of
// the retention window is treated as not owned (its events are no longer
// interesting to any client by then).
func (s *Server) ownedByUser(taskID, userID string) bool {
	task, ok := s.registry.Get(taskID)
	if !ok {
		return false
	}
	return task.UserID == userID
}

// encodeFrame builds the JSON body of one SSE data frame. The terminal
// status of a scan is not carried on ScanEvent itself (only the Task
// knows it), so a finalizing stage_complete event resolves it from the
// registry; every other event reports status "progress".
func (s *Server) encodeFrame(event types.ScanEvent) []byte {
	status := "progress"
	if event.Kind == types.EventStageComplete && event.Stage == types.StageFinalizing {
		if task, ok := s.registry.Get(event.TaskID); ok {
			status = string(task.Status())
		}
	}

	eventsProcessed, totalEvents := 0, 0
	if task, ok := s.registry.Get(event.TaskID); ok {
		snap := task.Snapshot()
		for _, n := range snap.EventsProcessed {
			eventsProcessed += n
		}
		totalEvents = snap.TotalEvents
	}

	frame := sseFrame{
		EventType: "collector.scan",
		Status:    status,
		Payload: ssePayload{
			TaskID:          event.TaskID,
			Seq:             event.Seq,
			Collector:       string(event.Stage),
			EventsProcessed: eventsProcessed,
			TotalEvents:     totalEvents,
			Output:          frameOutput(event),
		},
	}

	body, err := json.Marshal(frame)
	if err != nil {
		return []byte(`{"event_type":"collector.scan","status":"error"}`)
	}
	return body
}

// frameOutput renders a short human-readable summary of event for the
// payload's "output" field, e.g. for log lines and host discoveries.
func frameOutput(event types.ScanEvent) string {
	switch event.Kind {
	case types.EventHostUp:
		return "host up: " + event.Host.IP
	case types.EventHostDown:
		return "host down: " + event.Host.IP
	case types.EventPortState:
		return fmt.Sprintf("%s: %d ports", event.Host.IP, len(event.Host.Ports))
	case types.EventLogLine:
		return event.Message
	default:
		return ""
	}
}
