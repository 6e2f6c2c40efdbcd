package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/flowrun/internal/domain"
	"github.com/sawpanic/flowrun/internal/metrics"
	"github.com/sawpanic/flowrun/internal/persistence"
	"github.com/sawpanic/flowrun/internal/stream"
)

func testServer(t *testing.T) (*Server, *persistence.MemoryStore, *stream.StubBus) {
	t.Helper()
	store := persistence.NewMemoryStore()
	bus := stream.NewStubBus()
	require.NoError(t, bus.Start(context.Background()))
	s := NewServer(DefaultServerConfig(), store.Repository(), store, bus, metrics.NewRegistry())
	return s, store, bus
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func seedPackets(t *testing.T, store *persistence.MemoryStore, n int) {
	t.Helper()
	repos := store.Repository()
	for i := 1; i <= n; i++ {
		p := domain.FlowPacket{
			ID:       "pkt-" + string(rune('0'+i)),
			Kind:     domain.PacketKindContract,
			Members:  []string{"t1"},
			Features: map[string]interface{}{"count": float64(i)},
		}
		p.SourceTS = int64(1000 * i)
		p.Seq = int64(i)
		p.TraceID = p.ID
		require.NoError(t, repos.FlowPackets.Insert(context.Background(), p))
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := testServer(t)

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body struct {
		Healthy bool `json:"healthy"`
		Bus     struct {
			Healthy bool `json:"healthy"`
		} `json:"bus"`
		Store struct {
			Healthy bool `json:"healthy"`
		} `json:"store"`
	}
	decode(t, rec, &body)
	assert.True(t, body.Healthy)
	assert.True(t, body.Bus.Healthy)
	assert.True(t, body.Store.Healthy)
}

func TestHealthReportsStoppedBus(t *testing.T) {
	s, _, bus := testServer(t)
	require.NoError(t, bus.Stop(context.Background()))

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Healthy bool `json:"healthy"`
	}
	decode(t, rec, &body)
	assert.False(t, body.Healthy)
}

func TestPacketsLatest(t *testing.T) {
	s, store, _ := testServer(t)
	seedPackets(t, store, 3)

	rec := get(t, s, "/packets?limit=2")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Packets []domain.FlowPacket `json:"packets"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Packets, 2)
	assert.Equal(t, "pkt-2", body.Packets[0].ID)
	assert.Equal(t, "pkt-3", body.Packets[1].ID)
}

func TestPacketsCursor(t *testing.T) {
	s, store, _ := testServer(t)
	seedPackets(t, store, 3)

	rec := get(t, s, "/packets?after_ts=1000&after_seq=1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Packets []domain.FlowPacket `json:"packets"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Packets, 2)
	assert.Equal(t, "pkt-2", body.Packets[0].ID)
	assert.Equal(t, "pkt-3", body.Packets[1].ID)
}

func TestPacketsBadLimitFallsBack(t *testing.T) {
	s, store, _ := testServer(t)
	seedPackets(t, store, 2)

	rec := get(t, s, "/packets?limit=0")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Packets []domain.FlowPacket `json:"packets"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Packets, 2)
}

func TestAlertsEndpoint(t *testing.T) {
	s, store, _ := testServer(t)
	repos := store.Repository()

	a := domain.AlertEvent{Score: 57, Severity: domain.SeverityMedium, EvidenceRefs: []string{"pkt-1"}}
	a.SourceTS = 1000
	a.TraceID = "alert:pkt-1"
	require.NoError(t, repos.Alerts.Insert(context.Background(), a))

	rec := get(t, s, "/alerts")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Alerts []domain.AlertEvent `json:"alerts"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, 57, body.Alerts[0].Score)
	assert.Equal(t, domain.SeverityMedium, body.Alerts[0].Severity)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := testServer(t)

	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowrun_open_clusters")
}

func TestNotFound(t *testing.T) {
	s, _, _ := testServer(t)

	rec := get(t, s, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "not found", body["error"])
}
