// Package intent defines the declarative configuration the orchestrator
// issues to each blade: the Intent envelope and its three role-specific
// parameter payloads (§3, §4.3).
package intent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
)

// ScraperIntentParameters is the payload addressed to a scraper blade.
type ScraperIntentParameters struct {
	Module     string                 `json:"module"`     // owner/repo
	Version    string                 `json:"version"`    // tag of that module
	Target     string                 `json:"target"`      // aggregator push URL
	Parameters map[string]interface{} `json:"parameters"`  // keyword + merged module params
}

// SpottingIntentParameters carries no configuration today; main_address is
// fixed via the static topology.
type SpottingIntentParameters struct{}

// OrchestratorIntentParameters carries no configuration; only `version`
// matters for this role.
type OrchestratorIntentParameters struct{}

// Intent is addressed configuration for exactly one blade instance.
type Intent struct {
	ID      string      `json:"id"`      // <emission_time>:<host>:<port>
	Host    string      `json:"host"`    // target "host:port"
	Blade   topology.Role `json:"blade"` // role kind the intent is for
	Version string      `json:"version"` // desired version of the blade itself
	Params  interface{} `json:"params"`  // one of the *IntentParameters types
}

// intentWire is the JSON wire shape of Intent: Params is decoded lazily
// since its concrete type depends on the Blade discriminator.
type intentWire struct {
	ID      string          `json:"id"`
	Host    string          `json:"host"`
	Blade   topology.Role   `json:"blade"`
	Version string          `json:"version"`
	Params  json.RawMessage `json:"params"`
}

// MarshalJSON emits the wire shape directly; Params marshals whatever
// concrete type is stored (struct, map, or nil).
func (i Intent) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(i.Params)
	if err != nil {
		return nil, fmt.Errorf("marshaling intent params: %w", err)
	}
	return json.Marshal(intentWire{
		ID:      i.ID,
		Host:    i.Host,
		Blade:   i.Blade,
		Version: i.Version,
		Params:  params,
	})
}

// UnmarshalJSON decodes Params into the concrete type matching Blade, so a
// receiving blade gets a strongly typed params value instead of a bare map.
func (i *Intent) UnmarshalJSON(data []byte) error {
	var wire intentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	i.ID = wire.ID
	i.Host = wire.Host
	i.Blade = wire.Blade
	i.Version = wire.Version

	switch wire.Blade {
	case topology.RoleScraper:
		var p ScraperIntentParameters
		if len(wire.Params) > 0 {
			if err := json.Unmarshal(wire.Params, &p); err != nil {
				return fmt.Errorf("decoding scraper intent params: %w", err)
			}
		}
		i.Params = p
	case topology.RoleSpotting:
		i.Params = SpottingIntentParameters{}
	case topology.RoleOrchestrator:
		i.Params = OrchestratorIntentParameters{}
	default:
		var p map[string]interface{}
		if len(wire.Params) > 0 {
			_ = json.Unmarshal(wire.Params, &p)
		}
		i.Params = p
	}
	return nil
}

// NewID formats an intent ID as "<emission_time>:<host>:<port>" (§3).
func NewID(emittedAt time.Time, host string, port int) string {
	return fmt.Sprintf("%d:%s:%d", emittedAt.UnixNano(), host, port)
}

// Validate enforces the invariants of §3: id and host non-empty, and for
// scraper intents, module/version/target all non-empty.
func (i Intent) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("intent has empty id")
	}
	if i.Host == "" {
		return fmt.Errorf("intent has empty host")
	}
	if i.Blade == topology.RoleScraper {
		params, ok := i.Params.(ScraperIntentParameters)
		if !ok {
			return fmt.Errorf("scraper intent has non-scraper params")
		}
		if params.Module == "" || params.Version == "" || params.Target == "" {
			return fmt.Errorf("scraper intent missing module, version, or target")
		}
	}
	return nil
}
