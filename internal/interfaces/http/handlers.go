package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/flowrun/internal/persistence"
	"github.com/sawpanic/flowrun/internal/stream"
)

const defaultLimit = 100
const maxLimit = 1000

// Handlers serves the monitor endpoints from the persisted tables.
type Handlers struct {
	repos *persistence.Repository
	store persistence.Health
	bus   stream.Bus
}

// NewHandlers creates the handler set.
func NewHandlers(repos *persistence.Repository, store persistence.Health, bus stream.Bus) *Handlers {
	return &Handlers{repos: repos, store: store, bus: bus}
}

// Health reports bus and store connectivity.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	type component struct {
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}
	resp := struct {
		Healthy   bool      `json:"healthy"`
		Bus       component `json:"bus"`
		Store     component `json:"store"`
		Timestamp time.Time `json:"timestamp"`
	}{Timestamp: time.Now().UTC()}

	if h.bus != nil {
		st := h.bus.Health(r.Context())
		resp.Bus = component{Healthy: st.Healthy, Error: st.LastError}
	} else {
		resp.Bus = component{Healthy: true}
	}
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			resp.Store = component{Error: err.Error()}
		} else {
			resp.Store = component{Healthy: true}
		}
	} else {
		resp.Store = component{Healthy: true}
	}
	resp.Healthy = resp.Bus.Healthy && resp.Store.Healthy

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Packets serves persisted flow packets. With after_ts (and optional
// after_seq) it pages forward from the cursor; without, it returns the
// newest packets.
func (h *Handlers) Packets(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	if r.URL.Query().Get("after_ts") != "" {
		cur := persistence.Cursor{
			TS:  int64(queryInt(r, "after_ts", 0)),
			Seq: int64(queryInt(r, "after_seq", 0)),
		}
		packets, err := h.repos.FlowPackets.ListAfter(r.Context(), cur, limit)
		if err != nil {
			log.Error().Err(err).Msg("packet cursor read failed")
			writeJSON(w, http.StatusInternalServerError, errorBody("packet read failed"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"packets": packets})
		return
	}

	packets, err := h.repos.FlowPackets.Latest(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("latest packet read failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("packet read failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"packets": packets})
}

// Alerts serves the newest persisted alerts.
func (h *Handlers) Alerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	alerts, err := h.repos.Alerts.Latest(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("alert read failed")
		writeJSON(w, http.StatusInternalServerError, errorBody("alert read failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// NotFound serves a JSON 404.
func (h *Handlers) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody("not found"))
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}
