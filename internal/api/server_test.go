package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eidolon-project/eidolon/internal/auditsink"
	"github.com/eidolon-project/eidolon/internal/bus"
	"github.com/eidolon-project/eidolon/internal/driver"
	"github.com/eidolon-project/eidolon/internal/orchestrator"
	"github.com/eidolon-project/eidolon/internal/registry"
	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memConfigStore struct {
	configs map[string]types.ScanConfig
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[string]types.ScanConfig)}
}

func (m *memConfigStore) Get(userID string) (types.ScanConfig, bool, error) {
	cfg, ok := m.configs[userID]
	return cfg, ok, nil
}

func (m *memConfigStore) Put(userID string, cfg types.ScanConfig) error {
	m.configs[userID] = cfg
	return nil
}

// oneHostDriver replays a single host_up on ping and only a stage_complete
// on port, enough to drive a scan to completion quickly.
type oneHostDriver struct{}

func (oneHostDriver) RunPing(ctx context.Context, plan *types.ScanPlan) (<-chan driver.Msg, error) {
	ch := make(chan driver.Msg, 2)
	ch <- driver.Msg{Event: types.ScanEvent{Kind: types.EventHostUp, Host: types.HostInfo{IP: "10.0.0.5"}}}
	ch <- driver.Msg{Event: types.ScanEvent{Kind: types.EventStageComplete, Stage: types.StagePing, LiveHosts: []string{"10.0.0.5"}}}
	close(ch)
	return ch, nil
}

func (oneHostDriver) RunPort(ctx context.Context, plan *types.ScanPlan, liveHosts []string) (<-chan driver.Msg, error) {
	ch := make(chan driver.Msg, 1)
	ch <- driver.Msg{Event: types.ScanEvent{Kind: types.EventStageComplete, Stage: types.StagePort}}
	close(ch)
	return ch, nil
}

type noopWriter struct{}

func (noopWriter) UpsertHost(ctx context.Context, cidr string, host types.HostInfo) error { return nil }

func newTestServer() (*Server, *registry.Registry, *bus.Bus) {
	logger := zap.NewNop().Sugar()
	reg := registry.New(time.Minute, logger)
	b := bus.New(16, nil, nil, logger)
	cfgStore := newMemConfigStore()
	orch := orchestrator.New(oneHostDriver{}, noopWriter{}, b, logger)
	s := New(reg, b, cfgStore, orch, auditsink.NoopSink{}, logger)
	return s, reg, b
}

func TestStartScan_RequiresUserIDHeader(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/collector/scan", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartScan_UsesDefaultConfigAndReturnsRunning(t *testing.T) {
	s, reg, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/collector/scan", nil)
	req.Header.Set("x-user-id", "user-1")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"running"`)

	require.Eventually(t, func() bool {
		return reg.RunningCount() == 0
	}, time.Second, 10*time.Millisecond, "scan should finish quickly against the fake driver")
}

func TestStartScan_SecondConcurrentScanConflicts(t *testing.T) {
	s, _, _ := newTestServer()

	first := httptest.NewRequest(http.MethodPost, "/collector/scan", nil)
	first.Header.Set("x-user-id", "user-1")
	rec1 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec1, first)
	require.Equal(t, http.StatusOK, rec1.Code)

	second := httptest.NewRequest(http.MethodPost, "/collector/scan", nil)
	second.Header.Set("x-user-id", "user-1")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, second)

	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestCancelScan_UnknownTaskReturnsNotFound(t *testing.T) {
	s, _, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/collector/scan/cancel", strings.NewReader(`{"task_id":"nope"}`))
	req.Header.Set("x-user-id", "user-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfig_PutThenGetRoundTrips(t *testing.T) {
	s, _, _ := newTestServer()

	body := `{"network_cidrs":["10.0.0.0/30"],"ports":[22,80],"port_preset":"custom","options":{"ping_concurrency":64,"port_scan_workers":16,"dns_resolution":true,"aggressive":false}}`
	put := httptest.NewRequest(http.MethodPut, "/collector/config", strings.NewReader(body))
	put.Header.Set("x-user-id", "user-1")
	put.Header.Set("Content-Type", "application/json")
	putRec := httptest.NewRecorder()
	s.Router().ServeHTTP(putRec, put)
	require.Equal(t, http.StatusOK, putRec.Code)

	get := httptest.NewRequest(http.MethodGet, "/collector/config", nil)
	get.Header.Set("x-user-id", "user-1")
	getRec := httptest.NewRecorder()
	s.Router().ServeHTTP(getRec, get)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), `"10.0.0.0/30"`)
}

func TestConfig_PutRejectsOverlappingTargets(t *testing.T) {
	s, _, _ := newTestServer()

	body := `{"network_cidrs":["10.0.0.0/24","10.0.0.128/25"],"ports":[22],"port_preset":"custom","options":{"ping_concurrency":64,"port_scan_workers":16,"dns_resolution":true,"aggressive":false}}`
	req := httptest.NewRequest(http.MethodPut, "/collector/config", strings.NewReader(body))
	req.Header.Set("x-user-id", "user-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream_DeliversPublishedEventAsSSEFrame(t *testing.T) {
	s, _, b := newTestServer()

	server := httptest.NewServer(s.Router())
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/tasks/stream?task_id=task-1", nil)
	require.NoError(t, err)
	req.Header.Set("x-user-id", "user-1")

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	// give the handler time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	b.Publish(types.ScanEvent{Kind: types.EventHostUp, TaskID: "task-1", Host: types.HostInfo{IP: "10.0.0.9"}})

	line, err := readUntilData(reader, 2*time.Second)
	require.NoError(t, err)
	assert.Contains(t, line, `"task_id":"task-1"`)
	assert.Contains(t, line, `10.0.0.9`)
}

func readUntilData(r *bufio.Reader, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, "data: ") {
			return line, nil
		}
	}
	return "", context.DeadlineExceeded
}
