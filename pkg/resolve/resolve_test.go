package resolve

import (
	"testing"

	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
)

func testTopology() *topology.Topology {
	return &topology.Topology{
		Blades: []topology.Blade{
			{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "10.0.0.1", Port: 9000},
		},
	}
}

func TestOrchestrator_MissingCapability(t *testing.T) {
	target := topology.Blade{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "10.0.0.1", Port: 9000}
	_, err := Orchestrator(target, map[string]string{}, testTopology(), target)
	if err == nil {
		t.Fatal("expected error when capabilities lack the client repository")
	}
}

func TestOrchestrator_ProducesIntent(t *testing.T) {
	target := topology.Blade{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "10.0.0.1", Port: 9000}
	capabilities := map[string]string{ClientRepositoryPath: "v1.2.3"}

	got, err := Orchestrator(target, capabilities, testTopology(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Host != "10.0.0.1:9000" {
		t.Fatalf("host = %q", got.Host)
	}
	if got.Version != "v1.2.3" {
		t.Fatalf("version = %q", got.Version)
	}
	if got.Blade != topology.RoleOrchestrator {
		t.Fatalf("blade role = %q", got.Blade)
	}
	if _, ok := got.Params.(intent.OrchestratorIntentParameters); !ok {
		t.Fatalf("params type = %T", got.Params)
	}
}

func TestSpotting_ProducesIntent(t *testing.T) {
	target := topology.Blade{Name: "spotting-1", Role: topology.RoleSpotting, Host: "10.0.0.2", Port: 9200}
	capabilities := map[string]string{ClientRepositoryPath: "v1.2.3"}

	got, err := Spotting(target, capabilities, testTopology(), target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Blade != topology.RoleSpotting {
		t.Fatalf("blade role = %q", got.Blade)
	}
	if _, ok := got.Params.(intent.SpottingIntentParameters); !ok {
		t.Fatalf("params type = %T", got.Params)
	}
}

func TestSpotting_MissingCapability(t *testing.T) {
	target := topology.Blade{Name: "spotting-1", Role: topology.RoleSpotting, Host: "10.0.0.2", Port: 9200}
	_, err := Spotting(target, map[string]string{}, testTopology(), target)
	if err == nil {
		t.Fatal("expected error when capabilities lack the client repository")
	}
}
