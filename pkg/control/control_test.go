package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/resolve"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/exorde-labs/swarm-orchestrator/pkg/version"
)

type fakeStore struct {
	mu       sync.Mutex
	tags     []version.LatestTag
	syncErr  error
	closed   bool
	syncCalls int
}

func (f *fakeStore) Setup() error { return nil }
func (f *fakeStore) EnsureTracked(paths []string) error { return nil }
func (f *fakeStore) Sync(ctx context.Context, useCache bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	return f.syncErr
}
func (f *fakeStore) MarkTagAs(repo, tag, mark string) error            { return nil }
func (f *fakeStore) DeleteMarkFromTag(repo, tag, mark string) error    { return nil }
func (f *fakeStore) GetLatestValidTagsForAllRepos() ([]version.LatestTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags, nil
}
func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func fakeResolver(i *intent.Intent, err error) func(topology.Blade, map[string]string, *topology.Topology, topology.Blade) (*intent.Intent, error) {
	return func(target topology.Blade, capabilities map[string]string, topo *topology.Topology, self topology.Blade) (*intent.Intent, error) {
		return i, err
	}
}

func TestStartStop_ClosesStoreAndSyncsOnStartup(t *testing.T) {
	store := &fakeStore{}
	topo := &topology.Topology{
		ClusterParameters: topology.ClusterParameters{OrchestratorIntervalSeconds: 10},
		Blades:            []topology.Blade{{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "h", Port: 1}},
	}

	o := New(Config{
		Topology:  topo,
		Store:     store,
		Resolvers: map[topology.Role]resolve.Resolver{},
	})
	o.Start()
	// Give the settle sleep a moment to not race Stop.
	time.Sleep(10 * time.Millisecond)
	o.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.syncCalls != 1 {
		t.Fatalf("expected exactly one startup sync, got %d", store.syncCalls)
	}
	if !store.closed {
		t.Fatal("expected store to be closed on Stop")
	}
}

func TestTick_CommitsResolvedIntents(t *testing.T) {
	var received int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received++
		mu.Unlock()
		var got intent.Intent
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	store := &fakeStore{tags: []version.LatestTag{{RepositoryPath: "exorde-labs/exorde-swarm-client", TagName: "v1.0.0"}}}
	topo := &topology.Topology{
		ClusterParameters: topology.ClusterParameters{OrchestratorIntervalSeconds: 10},
		Blades:            []topology.Blade{{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "h", Port: 1}},
	}

	committed := &intent.Intent{ID: "1", Host: host, Blade: topology.RoleOrchestrator, Version: "v1.0.0", Params: intent.OrchestratorIntentParameters{}}

	o := New(Config{
		Topology: topo,
		Store:    store,
		Resolvers: map[topology.Role]resolve.Resolver{
			topology.RoleOrchestrator: fakeResolver(committed, nil),
		},
	})
	o.tick()

	mu.Lock()
	defer mu.Unlock()
	if received != 1 {
		t.Fatalf("expected the commit to reach the fake blade server, got %d requests", received)
	}
}

func TestTick_NilResolverResultIsSkippedNotFatal(t *testing.T) {
	store := &fakeStore{tags: []version.LatestTag{{RepositoryPath: "exorde-labs/exorde-swarm-client", TagName: "v1.0.0"}}}
	topo := &topology.Topology{
		ClusterParameters: topology.ClusterParameters{OrchestratorIntervalSeconds: 10},
		Blades:            []topology.Blade{{Name: "orchestrator-1", Role: topology.RoleOrchestrator, Host: "h", Port: 1}},
	}

	o := New(Config{
		Topology: topo,
		Store:    store,
		Resolvers: map[topology.Role]resolve.Resolver{
			topology.RoleOrchestrator: fakeResolver(nil, nil),
		},
	})
	// Must not panic even though the resolver returned no intent.
	o.tick()
}

func TestResolveAll_MissingResolverIsSkipped(t *testing.T) {
	topo := &topology.Topology{
		Blades: []topology.Blade{{Name: "scraper-1", Role: topology.RoleScraper, Host: "h", Port: 1}},
	}
	o := New(Config{Topology: topo, Store: &fakeStore{}, Resolvers: map[topology.Role]resolve.Resolver{}})

	intents := o.resolveAll(map[string]string{})
	if len(intents) != 0 {
		t.Fatalf("expected no intents when no resolver is registered, got %d", len(intents))
	}
}
