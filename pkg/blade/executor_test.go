package blade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/bladestate"
	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
)

type fakeInstaller struct {
	calls int
	err   error
}

func (f *fakeInstaller) Install(ctx context.Context, venv, module, version string) error {
	f.calls++
	return f.err
}

type fakeRunner struct {
	mu     sync.Mutex
	starts int
}

func (f *fakeRunner) Query(ctx context.Context, venv, moduleName string, parameters map[string]interface{}) (<-chan Item, <-chan error) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()

	items := make(chan Item)
	errs := make(chan error, 1)
	go func() {
		<-ctx.Done()
		close(items)
		close(errs)
	}()
	return items, errs
}

func scraperIntent(module, version, target string) intent.Intent {
	return intent.Intent{
		ID:      "1",
		Host:    "10.0.0.3:9300",
		Blade:   topology.RoleScraper,
		Version: "v1",
		Params: intent.ScraperIntentParameters{
			Module:  module,
			Version: version,
			Target:  target,
			Parameters: map[string]interface{}{
				"keyword": "bitcoin",
			},
		},
	}
}

func newTestExecutor(t *testing.T, installer *fakeInstaller, runner *fakeRunner) *ScraperExecutor {
	t.Helper()
	state, err := bladestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening blade state: %v", err)
	}
	t.Cleanup(func() { _ = state.Close() })

	self := topology.Blade{Name: "scraper-1", Role: topology.RoleScraper, Host: "10.0.0.3", Port: 9300, Venv: "/fake/venv"}
	return NewScraperExecutor(self, state, installer, runner, nil)
}

func TestApply_InstallsWhenNoLocalRecord(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	i := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	ack, err := e.Apply(context.Background(), i)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if installer.calls != 1 {
		t.Fatalf("expected exactly one install call, got %d", installer.calls)
	}

	ackMap, ok := ack.(map[string]interface{})
	if !ok || ackMap["status"] != "install_required" {
		t.Fatalf("expected an install_required ack, got %v", ack)
	}
}

func TestApply_NoReinstallWhenAlreadyCurrent(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	i := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if installer.calls != 1 {
		t.Fatalf("expected 1 install after first apply, got %d", installer.calls)
	}

	// Same module+version: install must not run again, and the task should start.
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if installer.calls != 1 {
		t.Fatalf("expected install call count to stay at 1, got %d", installer.calls)
	}

	runner.mu.Lock()
	starts := runner.starts
	runner.mu.Unlock()
	if starts != 1 {
		t.Fatalf("expected the scraping task to start exactly once, got %d", starts)
	}
}

func TestApply_IdempotentOnIdenticalIntent(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	i := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	// A third, byte-identical intent should still not restart the task.
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("third apply failed: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.starts != 1 {
		t.Fatalf("identical intents must not restart the running task, starts=%d", runner.starts)
	}
}

func TestApply_RestartsTaskWhenParametersChange(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	first := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	// First apply triggers the install; no task runs yet.
	if _, err := e.Apply(context.Background(), first); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	// Second apply, same intent: module is now current, so the task starts.
	if _, err := e.Apply(context.Background(), first); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}

	third := first
	thirdParams := first.Params.(intent.ScraperIntentParameters)
	thirdParams.Parameters = map[string]interface{}{"keyword": "ethereum"}
	third.Params = thirdParams

	if _, err := e.Apply(context.Background(), third); err != nil {
		t.Fatalf("third apply failed: %v", err)
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.starts != 2 {
		t.Fatalf("expected a restart when parameters change meaningfully, starts=%d", runner.starts)
	}
}

func TestApply_MalformedParamsRejected(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	bad := intent.Intent{ID: "1", Host: "h:1", Blade: topology.RoleScraper, Params: intent.SpottingIntentParameters{}}
	if _, err := e.Apply(context.Background(), bad); err == nil {
		t.Fatal("expected an error for an intent whose params don't match its declared role")
	}
}

func TestState_ReflectsInstalledAndRunning(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	i := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	state, ok := e.State().(map[string]interface{})
	if !ok {
		t.Fatalf("State() returned %T, want map", e.State())
	}
	if state["task_running"] != true {
		t.Fatalf("expected task_running=true, got %v", state["task_running"])
	}
	if _, ok := state["installed"]; !ok {
		t.Fatal("expected an installed record in state")
	}
}

func TestInstall_RestartIsInvokedAfterSuccess(t *testing.T) {
	installer := &fakeInstaller{}
	runner := &fakeRunner{}

	state, err := bladestate.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening blade state: %v", err)
	}
	defer state.Close()

	restarted := make(chan struct{}, 1)
	self := topology.Blade{Name: "scraper-1", Role: topology.RoleScraper, Host: "10.0.0.3", Port: 9300}
	e := NewScraperExecutor(self, state, installer, runner, func() { restarted <- struct{}{} })

	i := scraperIntent("exorde-labs/exorde-twitter-scraper", "v1.0.0", "http://aggregator/push")
	if _, err := e.Apply(context.Background(), i); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	select {
	case <-restarted:
	case <-time.After(time.Second):
		t.Fatal("expected restart callback to fire after a successful install")
	}
}

func TestForward_PostsItemToTarget(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	installer := &fakeInstaller{}
	runner := &fakeRunner{}
	e := newTestExecutor(t, installer, runner)

	e.forward(context.Background(), srv.URL, Item{"text": "hello"})

	select {
	case got := <-received:
		if got["text"] != "hello" {
			t.Fatalf("unexpected forwarded item: %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the item to be forwarded")
	}
}
