package auditsink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPSink_Record_Success(t *testing.T) {
	var gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("X-Internal-API-Key")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "secret-key", zap.NewNop().Sugar())
	err := sink.Record(context.Background(), Record{TaskID: "task-1", Status: "complete"})

	require.NoError(t, err)
	assert.Equal(t, "secret-key", gotAPIKey)
}

func TestHTTPSink_Record_ServerErrorReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, "", zap.NewNop().Sugar())
	err := sink.Record(context.Background(), Record{TaskID: "task-1"})

	assert.Error(t, err)
}

func TestNoopSink_NeverErrors(t *testing.T) {
	var sink Sink = NoopSink{}
	assert.NoError(t, sink.Record(context.Background(), Record{}))
}
