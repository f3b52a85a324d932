package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ingestServer collects the batches posted to it.
type ingestServer struct {
	*httptest.Server
	mu      sync.Mutex
	batches []model.FrontendLogBatch
	headers []http.Header
	status  int
}

func newIngestServer(t *testing.T) *ingestServer {
	t.Helper()
	s := &ingestServer{status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b model.FrontendLogBatch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		status := s.status
		if status < 300 {
			s.batches = append(s.batches, b)
			s.headers = append(s.headers, r.Header.Clone())
		}
		s.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *ingestServer) logs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, b := range s.batches {
		out = append(out, b.Logs...)
	}
	return out
}

func (s *ingestServer) setStatus(code int) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func TestTransportRecordsTraffic(t *testing.T) {
	ingest := newIngestServer(t)
	app := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "s-1", r.Header.Get("X-Session-ID"))
		if r.URL.Path == "/api/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer app.Close()

	up := NewUploader(Options{Endpoint: ingest.URL + "/api/logs/frontend", PageURL: "https://erp.example.com/ledger"})
	client := &http.Client{Transport: &Transport{
		Uploader: up,
		Identity: func() model.Identity { return model.Identity{Username: "zain", SessionID: "s-1"} },
	}}

	req, err := http.NewRequest(http.MethodGet, app.URL+"/api/ledger", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, req.Header.Get("X-Request-ID"), "caller's request must not be mutated")

	resp, err = client.Get(app.URL + "/api/broken")
	require.NoError(t, err)
	resp.Body.Close()

	_, err = client.Get("http://127.0.0.1:1/unreachable")
	require.Error(t, err)

	require.Equal(t, 6, up.Pending())
	require.NoError(t, up.Flush(context.Background()))
	assert.Zero(t, up.Pending())

	logs := ingest.logs()
	require.Len(t, logs, 6)
	types := make([]string, 0, len(logs))
	for _, l := range logs {
		types = append(types, l["type"].(string))
		assert.Equal(t, "zain", l["username"])
	}
	assert.Equal(t, []string{
		model.FrontendRequest, model.FrontendResponse,
		model.FrontendRequest, model.FrontendResponseError,
		model.FrontendRequest, model.FrontendRequestError,
	}, types)
	assert.Equal(t, logs[0]["requestId"], logs[1]["requestId"])
	assert.NotContains(t, logs[0]["headers"], "Authorization")
	assert.Equal(t, float64(500), logs[3]["status"])
	assert.Equal(t, false, logs[5]["success"])

	ingest.mu.Lock()
	assert.Equal(t, "https://erp.example.com/ledger", ingest.batches[0].URL)
	ingest.mu.Unlock()
}

func TestTransportSkipsUploadEndpoint(t *testing.T) {
	ingest := newIngestServer(t)
	up := NewUploader(Options{Endpoint: ingest.URL + "/api/logs/frontend"})
	client := &http.Client{Transport: &Transport{Uploader: up}}

	resp, err := client.Post(up.Endpoint(), "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Zero(t, up.Pending())
}

func TestFailedUploadIsRetained(t *testing.T) {
	ingest := newIngestServer(t)
	ingest.setStatus(http.StatusInternalServerError)
	up := NewUploader(Options{
		Endpoint: ingest.URL,
		Headers:  http.Header{"Authorization": []string{"Bearer t"}},
	})
	up.Add(map[string]any{"type": "user_activity"})
	up.Add(map[string]any{"type": "frontend_error"})

	require.Error(t, up.Flush(context.Background()))
	assert.Equal(t, 2, up.Pending())

	ingest.setStatus(http.StatusOK)
	require.NoError(t, up.Flush(context.Background()))
	assert.Zero(t, up.Pending())
	require.Len(t, ingest.logs(), 2)
	assert.Equal(t, "user_activity", ingest.logs()[0]["type"])
	ingest.mu.Lock()
	assert.Equal(t, "Bearer t", ingest.headers[0].Get("Authorization"))
	assert.Len(t, ingest.headers[0].Get("X-Idempotency-Key"), 64)
	ingest.mu.Unlock()
}

func TestBatchKeyFollowsEntries(t *testing.T) {
	a := []map[string]any{{"type": "user_activity", "n": 1}, {"type": "frontend_error"}}
	b := []map[string]any{{"n": 1, "type": "user_activity"}, {"type": "frontend_error"}}
	c := []map[string]any{{"type": "user_activity", "n": 2}}

	ka, err := batchKey(a)
	require.NoError(t, err)
	kb, err := batchKey(b)
	require.NoError(t, err)
	kc, err := batchKey(c)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, kc)
}

func TestBufferDropsOldest(t *testing.T) {
	up := NewUploader(Options{Endpoint: "http://unused", MaxBuffer: 3, BatchSize: 100})
	for i := 0; i < 5; i++ {
		up.Add(map[string]any{"n": i})
	}
	require.Equal(t, 3, up.Pending())
	up.mu.Lock()
	assert.Equal(t, 2, up.buf[0]["n"])
	up.mu.Unlock()
}

func TestRunFlushesOnTickAndFullBatch(t *testing.T) {
	ingest := newIngestServer(t)
	clock := clockwork.NewFakeClock()
	up := NewUploader(Options{Endpoint: ingest.URL, BatchSize: 2, FlushInterval: time.Minute, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		up.Run(ctx)
		close(done)
	}()

	up.Add(map[string]any{"type": "a"})
	up.Add(map[string]any{"type": "b"})
	require.Eventually(t, func() bool { return len(ingest.logs()) == 2 }, 5*time.Second, 5*time.Millisecond)

	up.Add(map[string]any{"type": "c"})
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(ingest.logs()) == 3 }, 5*time.Second, 5*time.Millisecond)

	up.Add(map[string]any{"type": "d"})
	cancel()
	<-done
	assert.Len(t, ingest.logs(), 4)
}

func TestTracker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	up := NewUploader(Options{Endpoint: "http://unused", Clock: clock})
	tr := NewTracker(up, func() model.Identity { return model.Identity{Username: "zain"} }, clock)

	tr.TrackActivity(model.ActivityPrintInvoice, "Printed INV-7", map[string]any{"invoice": "INV-7"})
	tr.LogError(apperrors.NewValidation("amount required", nil), map[string]any{"form": "invoice"})
	tr.LogError(nil, nil)
	tr.LogError(errors.New("render failed"), nil)

	require.Equal(t, 3, up.Pending())
	up.mu.Lock()
	defer up.mu.Unlock()
	assert.Equal(t, model.FrontendUserActivity, up.buf[0]["type"])
	assert.Equal(t, "PRINT_INVOICE", up.buf[0]["activity"])
	assert.Equal(t, "2026-06-01T09:00:00Z", up.buf[0]["timestamp"])
	assert.Equal(t, model.FrontendError, up.buf[1]["type"])
	detail := up.buf[1]["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", detail["code"])
	assert.Equal(t, "zain", up.buf[2]["username"])
}
