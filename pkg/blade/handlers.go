package blade

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/rs/zerolog"
)

// RoleState is queried by the status handler for role-specific JSON; only
// the scraper executor implements it today.
type RoleState interface {
	State() interface{}
}

// Server is the HTTP surface every blade exposes (§4.8, §6): GET / for
// status, POST / to accept an intent.
type Server struct {
	self     topology.Blade
	topology *topology.Topology
	executor *ScraperExecutor // nil for non-scraper roles
	logger   zerolog.Logger
}

// NewServer builds the shared blade HTTP surface. executor may be nil for
// roles with no role-specific reconciliation (orchestrator, spotting,
// monitor).
func NewServer(self topology.Blade, topo *topology.Topology, executor *ScraperExecutor) *Server {
	return &Server{
		self:     self,
		topology: topo,
		executor: executor,
		logger:   log.WithComponent("blade.http"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleStatus(w, r)
	case http.MethodPost:
		s.handleIntent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	}
}

// handleStatus implements §4.8: blade declaration, topology, and
// role-specific state, tolerating non-serializable fields by falling back
// to their string form.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"blade":    s.self,
		"topology": s.topology,
	}
	if s.executor != nil {
		body["state"] = s.executor.State()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := encodeTolerant(w, body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode status response")
	}
}

// handleIntent implements the common POST / contract of §6: decode the
// intent, dispatch to role-specific behavior, respond with role-dependent
// JSON or a 4xx error envelope.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var i intent.Intent
	if err := json.NewDecoder(r.Body).Decode(&i); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_intent")
		return
	}
	if err := i.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_intent")
		return
	}

	if s.executor == nil || i.Blade != topology.RoleScraper {
		// Non-scraper roles have no reconciliation logic of their own
		// today; acknowledge receipt (§6: "role-dependent JSON").
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
		return
	}

	ack, err := s.executor.Apply(r.Context(), i)
	if err != nil {
		s.logger.Error().Err(err).Str("intent_id", i.ID).Msg("failed to apply scraper intent")
		writeError(w, http.StatusInternalServerError, "apply_failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := encodeTolerant(w, ack); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode intent ack")
	}
}

func writeError(w http.ResponseWriter, status int, kind string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": kind})
}

// encodeTolerant marshals v, falling back field-by-field to string
// rendering for anything json.Marshal can't handle, per §4.8's "failure to
// serialize a field must not abort the response".
func encodeTolerant(w http.ResponseWriter, v interface{}) error {
	data, err := json.Marshal(v)
	if err == nil {
		_, werr := w.Write(data)
		return werr
	}

	m, ok := v.(map[string]interface{})
	if !ok {
		_, werr := w.Write([]byte(fmt.Sprintf(`{"value":%q}`, fmt.Sprintf("%v", v))))
		return werr
	}

	safe := make(map[string]interface{}, len(m))
	for k, field := range m {
		if _, ferr := json.Marshal(field); ferr != nil {
			safe[k] = fmt.Sprintf("%v", field)
		} else {
			safe[k] = field
		}
	}
	data, err = json.Marshal(safe)
	if err != nil {
		return err
	}
	_, werr := w.Write(data)
	return werr
}
