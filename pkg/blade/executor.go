package blade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/bladestate"
	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/swarmerr"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/rs/zerolog"
)

// itemForwardTimeout is the default per-item push timeout of §5.
const itemForwardTimeout = 5 * time.Second

// ScraperExecutor is the blade-side intent executor for the scraper role
// (§4.7): it reconciles the locally installed module against an incoming
// intent and runs at most one scraping task at a time.
type ScraperExecutor struct {
	self  topology.Blade
	state *bladestate.Store

	installer Installer
	runner    ModuleRunner
	client    *http.Client
	logger    zerolog.Logger

	// restart is called after a successful install, in place of the
	// original's os.execl process-image replacement: it signals the
	// supervising launcher to restart this blade (§9 design note). Nil in
	// most tests; a nil restart is skipped.
	restart func()

	mu            sync.Mutex
	currentIntent *intent.Intent
	cancelTask    context.CancelFunc
}

// NewScraperExecutor builds an executor bound to a single blade's local
// state.
func NewScraperExecutor(self topology.Blade, state *bladestate.Store, installer Installer, runner ModuleRunner, restart func()) *ScraperExecutor {
	return &ScraperExecutor{
		self:      self,
		state:     state,
		installer: installer,
		runner:    runner,
		client:    &http.Client{Timeout: itemForwardTimeout},
		logger:    log.WithComponent("blade.scraper"),
		restart:   restart,
	}
}

// Apply implements §4.7 steps 1-5. The returned value is the JSON ack body
// for the triggering POST /.
func (e *ScraperExecutor) Apply(ctx context.Context, i intent.Intent) (interface{}, error) {
	params, ok := i.Params.(intent.ScraperIntentParameters)
	if !ok {
		return nil, fmt.Errorf("%w: scraper intent missing scraper params", swarmerr.ErrMalformedIntent)
	}

	moduleName := moduleBaseName(params.Module)

	installed, found, err := e.state.Get()
	if err != nil {
		return nil, fmt.Errorf("reading installed module state: %w", err)
	}
	installRequired := !found || installed.Module != params.Module || installed.Version != params.Version

	if installRequired {
		return e.install(ctx, params, moduleName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelTask == nil {
		e.startTask(i, params, moduleName)
		return e.stateLocked(), nil
	}

	if e.currentIntent != nil && intentsEquivalent(*e.currentIntent, i) {
		// Idempotent: same intent, leave the running task untouched (§8
		// property 6).
		return e.stateLocked(), nil
	}

	e.cancelTask()
	e.startTask(i, params, moduleName)
	return e.stateLocked(), nil
}

// install performs the blocking module install and schedules a planned
// restart, never a literal process-image replacement (§9 design note).
func (e *ScraperExecutor) install(ctx context.Context, params intent.ScraperIntentParameters, moduleName string) (interface{}, error) {
	timer := metrics.NewTimer()
	e.logger.Info().Str("module", params.Module).Str("version", params.Version).Msg("install required, fetching module")

	err := e.installer.Install(ctx, e.self.Venv, params.Module, params.Version)
	timer.ObserveDurationVec(metrics.InstallDuration, params.Module)
	if err != nil {
		metrics.InstallsTotal.WithLabelValues(params.Module, "failed").Inc()
		return nil, fmt.Errorf("%w: %v", swarmerr.ErrModuleInstallFailed, err)
	}
	metrics.InstallsTotal.WithLabelValues(params.Module, "ok").Inc()

	if err := e.state.Set(bladestate.Installed{Module: params.Module, Version: params.Version}); err != nil {
		return nil, fmt.Errorf("persisting installed module state: %w", err)
	}

	ack := map[string]interface{}{
		"status":     "install_required",
		"module":     params.Module,
		"version":    params.Version,
		"restarting": true,
	}

	if e.restart != nil {
		// Best-effort: give the HTTP response a chance to flush before the
		// supervising launcher restarts this process.
		go func() {
			time.Sleep(200 * time.Millisecond)
			e.restart()
		}()
	}

	return ack, nil
}

// startTask launches the per-item forwarding goroutine. Caller must hold
// e.mu.
func (e *ScraperExecutor) startTask(i intent.Intent, params intent.ScraperIntentParameters, moduleName string) {
	taskCtx, cancel := context.WithCancel(context.Background())
	e.cancelTask = cancel
	e.currentIntent = &i

	items, errs := e.runner.Query(taskCtx, e.self.Venv, moduleName, params.Parameters)

	go func() {
		for {
			select {
			case item, ok := <-items:
				if !ok {
					return
				}
				e.forward(taskCtx, params.Target, item)
			case err, ok := <-errs:
				if ok && err != nil {
					e.logger.Warn().Err(err).Str("module", moduleName).Msg("scraping module reported an error, continuing")
				}
			case <-taskCtx.Done():
				return
			}
		}
	}()
}

func (e *ScraperExecutor) forward(ctx context.Context, target string, item Item) {
	body, err := json.Marshal(item)
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to encode scraped item, dropping")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, itemForwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		e.logger.Warn().Err(err).Str("target", target).Msg("failed to build item forward request, dropping")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn().Err(err).Str("target", target).Msg("failed to forward item, dropping")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn().Int("status", resp.StatusCode).Str("target", target).Msg("item forward rejected, dropping")
	}
}

// State returns role-specific state for the §4.8 status surface.
func (e *ScraperExecutor) State() interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *ScraperExecutor) stateLocked() map[string]interface{} {
	s := map[string]interface{}{
		"task_running": e.cancelTask != nil,
	}
	if e.currentIntent != nil {
		s["current_intent"] = e.currentIntent
	}
	if installed, found, err := e.state.Get(); err == nil && found {
		s["installed"] = installed
	}
	return s
}

// intentsEquivalent compares the fields that matter for §4.7 step 5 ("the
// intent differs meaningfully"): module, version, target, and parameters.
func intentsEquivalent(a, b intent.Intent) bool {
	pa, aok := a.Params.(intent.ScraperIntentParameters)
	pb, bok := b.Params.(intent.ScraperIntentParameters)
	if !aok || !bok {
		return aok == bok
	}
	return pa.Module == pb.Module && pa.Version == pb.Version && pa.Target == pb.Target && reflect.DeepEqual(pa.Parameters, pb.Parameters)
}
