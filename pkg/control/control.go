// Package control implements the orchestrator loop of §4.5 and the intent
// commit of §4.6: per tick, resolve an intent for every blade in the
// topology and push it out concurrently, never letting one blade's failure
// block another's.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/resolve"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/exorde-labs/swarm-orchestrator/pkg/version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// commitConcurrency bounds the number of intents in flight at once; the
// swarm topology is small (tens of blades) so this is generous headroom
// rather than a real limit.
const commitConcurrency = 16

// commitTimeout is the per-intent POST timeout of §4.6.
const commitTimeout = 1 * time.Second

// Config wires an Orchestrator to its topology, its version store, and one
// Resolver per role. A role absent from Resolvers is skipped every tick
// (logged at warning).
type Config struct {
	Topology   *topology.Topology
	Self       topology.Blade
	Store      version.Store
	Resolvers  map[topology.Role]resolve.Resolver
	HTTPClient *http.Client
}

// Orchestrator runs the INIT -> RUNNING <-> TICK -> SHUTDOWN state machine
// of §4.5 as a single background goroutine.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New builds an Orchestrator. Call Start to begin ticking.
func New(cfg Config) *Orchestrator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: commitTimeout}
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: log.WithComponent("control"),
	}
}

// Start performs the startup sync (§4.5: "sync failure is logged but does
// not block the loop") and launches the tick loop.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})

	if err := o.cfg.Store.Sync(context.Background(), false); err != nil {
		o.logger.Warn().Err(err).Msg("startup version sync failed, continuing with whatever tags are persisted")
	}

	go o.run()
}

// Stop cancels the loop and awaits its termination, then closes the
// version store (§4.5 shutdown sequence).
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	close(o.stopCh)
	o.mu.Unlock()

	<-o.doneCh

	if err := o.cfg.Store.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to close version store on shutdown")
	}
}

func (o *Orchestrator) run() {
	defer close(o.doneCh)

	interval := time.Duration(o.cfg.Topology.ClusterParameters.OrchestratorIntervalSeconds) * time.Second
	settle := 1 * time.Second
	if interval > settle {
		interval -= settle
	}

	o.logger.Info().Dur("interval", interval).Msg("orchestrator loop started")

	select {
	case <-time.After(settle):
	case <-o.stopCh:
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o.tick()
		select {
		case <-ticker.C:
		case <-o.stopCh:
			o.logger.Info().Msg("orchestrator loop stopped")
			return
		}
	}
}

// tick implements §4.5 steps 1-4.
func (o *Orchestrator) tick() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.TickDuration)
		metrics.TicksTotal.Inc()
	}()

	capabilities, err := o.buildCapabilities()
	if err != nil {
		o.logger.Error().Err(err).Msg("failed to resolve capability map, skipping tick")
		return
	}

	intents := o.resolveAll(capabilities)

	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout*time.Duration(len(intents)+1))
	defer cancel()
	o.commitAll(ctx, intents)
}

func (o *Orchestrator) buildCapabilities() (map[string]string, error) {
	tags, err := o.cfg.Store.GetLatestValidTagsForAllRepos()
	if err != nil {
		return nil, fmt.Errorf("resolving capability map: %w", err)
	}
	capabilities := make(map[string]string, len(tags))
	for _, t := range tags {
		capabilities[t.RepositoryPath] = t.TagName
	}
	return capabilities, nil
}

// resolveAll invokes the matching resolver for every blade in the
// topology. Errors, missing resolvers, and nil results are logged but
// never abort the tick (§4.5 step 2).
func (o *Orchestrator) resolveAll(capabilities map[string]string) []intent.Intent {
	var intents []intent.Intent
	for _, blade := range o.cfg.Topology.Blades {
		resolver, ok := o.cfg.Resolvers[blade.Role]
		if !ok {
			metrics.ResolveSkippedTotal.WithLabelValues(string(blade.Role), "no_resolver").Inc()
			o.logger.Warn().Str("blade", blade.Name).Str("role", string(blade.Role)).Msg("no resolver registered for role, skipping")
			continue
		}

		i, err := resolver(blade, capabilities, o.cfg.Topology, o.cfg.Self)
		if err != nil {
			metrics.ResolveErrorsTotal.WithLabelValues(string(blade.Role)).Inc()
			o.logger.Error().Err(err).Str("blade", blade.Name).Str("role", string(blade.Role)).Msg("resolver failed, skipping blade this tick")
			continue
		}
		if i == nil {
			metrics.ResolveSkippedTotal.WithLabelValues(string(blade.Role), "no_intent").Inc()
			o.logger.Warn().Str("blade", blade.Name).Str("role", string(blade.Role)).Msg("resolver returned no actionable intent")
			continue
		}

		intents = append(intents, *i)
	}
	return intents
}

// commitAll fans out commit(intent) with bounded concurrency. No commit
// failure is ever propagated (§4.6).
func (o *Orchestrator) commitAll(ctx context.Context, intents []intent.Intent) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(commitConcurrency)

	for _, i := range intents {
		i := i
		g.Go(func() error {
			o.commit(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// commit performs POST http://<intent.host>/ with a 1-second timeout.
// Failures are logged at warning and swallowed (§4.6): no retry within a
// tick, the next tick re-emits.
func (o *Orchestrator) commit(ctx context.Context, i intent.Intent) {
	timer := metrics.NewTimer()
	role := string(i.Blade)
	defer timer.ObserveDurationVec(metrics.CommitDuration, role)

	body, err := json.Marshal(i)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(role, "encode_error").Inc()
		o.logger.Error().Err(err).Str("intent_id", i.ID).Msg("failed to encode intent")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/", i.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(role, "request_error").Inc()
		o.logger.Warn().Err(err).Str("host", i.Host).Msg("failed to build commit request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(role, "unreachable").Inc()
		o.logger.Warn().Err(err).Str("host", i.Host).Str("intent_id", i.ID).Msg("commit failed, will retry next tick")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.CommitsTotal.WithLabelValues(role, "rejected").Inc()
		o.logger.Warn().Int("status", resp.StatusCode).Str("host", i.Host).Str("intent_id", i.ID).Msg("commit rejected by blade")
		return
	}

	metrics.CommitsTotal.WithLabelValues(role, "ok").Inc()
}
