package monitor

import (
	"encoding/json"
	"net/http"

	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
)

// Handler returns the monitor's HTTP surface: POST /logs to ingest, GET
// /state to poll the aggregated tree (§6 monitor surface, reduced from
// WebSocket fan-out to polling per SPEC_FULL.md's supplemented features).
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", m.handleLogs)
	mux.HandleFunc("/state", m.handleState)
	return mux
}

func (m *Monitor) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var record LogRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		log.WithComponent("monitor").Warn().Err(err).Msg("dropping malformed log record")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "malformed_log_record"})
		return
	}

	m.Ingest(record)
	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.State())
}
