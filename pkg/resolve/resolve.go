// Package resolve implements the per-role intent resolvers of §4.3: pure
// functions that, given a target blade, the current capability map, the
// topology, and the resolving blade's own declaration, return an Intent or
// signal that there is nothing actionable this tick.
package resolve

import (
	"fmt"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
)

// ClientRepositoryPath is the orchestrator/blade's own control-code
// repository, always tracked by the version store by default.
const ClientRepositoryPath = "exorde-labs/exorde-swarm-client"

// Resolver computes the desired Intent for target, or (nil, nil) to signal
// "no actionable intent this tick" (§4.3) — the caller is responsible for
// logging that at warning level. A non-nil error is a hard failure for
// this blade this tick; the loop skips it and retries next tick.
type Resolver func(target topology.Blade, capabilities map[string]string, topo *topology.Topology, self topology.Blade) (*intent.Intent, error)

// Orchestrator resolves the intent for an orchestrator blade: it has no
// role-specific configuration, only the client version to roll out.
func Orchestrator(target topology.Blade, capabilities map[string]string, topo *topology.Topology, self topology.Blade) (*intent.Intent, error) {
	version, ok := capabilities[ClientRepositoryPath]
	if !ok {
		return nil, fmt.Errorf("capability map has no entry for %s", ClientRepositoryPath)
	}
	return &intent.Intent{
		ID:      intent.NewID(time.Now(), target.Host, target.Port),
		Host:    target.Address(),
		Blade:   topology.RoleOrchestrator,
		Version: version,
		Params:  intent.OrchestratorIntentParameters{},
	}, nil
}

// Spotting resolves the intent for a spotting blade: same shape as
// Orchestrator, the aggregator has no per-tick configuration under a
// static topology.
func Spotting(target topology.Blade, capabilities map[string]string, topo *topology.Topology, self topology.Blade) (*intent.Intent, error) {
	version, ok := capabilities[ClientRepositoryPath]
	if !ok {
		return nil, fmt.Errorf("capability map has no entry for %s", ClientRepositoryPath)
	}
	return &intent.Intent{
		ID:      intent.NewID(time.Now(), target.Host, target.Port),
		Host:    target.Address(),
		Blade:   topology.RoleSpotting,
		Version: version,
		Params:  intent.SpottingIntentParameters{},
	}, nil
}
