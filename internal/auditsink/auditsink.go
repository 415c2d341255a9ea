// Package auditsink is the interface boundary to audit persistence, which
// this module treats as an external collaborator: it records that a scan
// happened and how it ended, nothing more.
package auditsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Record is one terminal-task summary sent to the audit sink.
type Record struct {
	TaskID        string `json:"task_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	EventsTotal   int    `json:"events_total"`
	FailureReason string `json:"failure_reason,omitempty"`
	ConfigSummary string `json:"config_summary"`
	FinishedAt    string `json:"finished_at"`
}

// Sink records a terminal task. Implementations must not block the
// orchestrator for long; HTTPSink bounds itself with a request timeout.
type Sink interface {
	Record(ctx context.Context, rec Record) error
}

// NoopSink discards every record, used when no audit endpoint is
// configured.
type NoopSink struct{}

func (NoopSink) Record(context.Context, Record) error { return nil }

// HTTPSink posts Record as JSON to a fixed URL, with a timeout, an
// API-key header, and a log-and-return pattern on failure.
type HTTPSink struct {
	url    string
	apiKey string
	client *http.Client
	logger *zap.SugaredLogger
}

// NewHTTPSink builds an HTTPSink posting to url with a 10s client timeout.
func NewHTTPSink(url, apiKey string, logger *zap.SugaredLogger) *HTTPSink {
	return &HTTPSink{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (s *HTTPSink) Record(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warnw("audit record failed", "url", s.url, "task_id", rec.TaskID, "error", err)
		return fmt.Errorf("audit request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		s.logger.Warnw("audit sink returned error", "url", s.url, "status", resp.StatusCode)
		return fmt.Errorf("audit sink returned status %d", resp.StatusCode)
	}
	return nil
}
