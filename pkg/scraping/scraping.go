// Package scraping implements §4.4's scraper orchestration: the
// domain/module/keyword selection pipeline and the 10-second per-host
// memoization that decouples loop cadence from module/keyword churn.
package scraping

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/chooser"
	"github.com/exorde-labs/swarm-orchestrator/pkg/intent"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/resolve"
	"github.com/exorde-labs/swarm-orchestrator/pkg/swarmerr"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
)

// memoWindow is the hard re-selection window of §4.4.
const memoWindow = 10 * time.Second

// ScrapersConfiguration is the externally-sourced snapshot consumed at each
// orchestration tick (§3 "Scrapers configuration").
type ScrapersConfiguration struct {
	// DomainOrder fixes the iteration order of Weights for the chooser's
	// layer 0 (Go maps have none); callers build it from whatever ordered
	// source the configuration arrived in.
	DomainOrder []string
	Weights     map[string]float64
	// EnabledModules maps a domain name to an ordered list of module
	// repository URLs; the first entry is canonical (§4.4 step 5).
	EnabledModules map[string][]string
	// KeywordSources maps an owner/repo module path to its candidate
	// keyword pool, consumed by the default KeywordChooser.
	KeywordSources            map[string][]string
	GenericModulesParameters  map[string]interface{}
	SpecificModulesParameters map[string]map[string]interface{}
}

// ConfigSource fetches the current scrapers configuration. A failure here
// is critical and propagates out of Resolve unchanged (§4.4 step 1).
type ConfigSource interface {
	FetchScrapersConfiguration(ctx context.Context) (ScrapersConfiguration, error)
}

// KeywordChooser picks a keyword for a module given the full configuration,
// returning the chosen keyword and the name of the algorithm that picked it
// (kept for observability only, §4.4 step 6).
type KeywordChooser interface {
	ChooseKeyword(module string, cfg ScrapersConfiguration) (keyword, algorithm string, err error)
}

// RandomKeywordChooser draws uniformly from cfg.KeywordSources[module]. A
// module with no configured keyword pool yields an empty keyword rather
// than an error: many scraping modules run unfiltered.
type RandomKeywordChooser struct {
	Rand *rand.Rand
}

func (c RandomKeywordChooser) ChooseKeyword(module string, cfg ScrapersConfiguration) (string, string, error) {
	pool := cfg.KeywordSources[module]
	if len(pool) == 0 {
		return "", "none", nil
	}
	return pool[c.Rand.Intn(len(pool))], "random", nil
}

type cachedIntent struct {
	intent intent.Intent
	at     time.Time
}

// Scraper holds the collaborators and memoization state behind the scraper
// resolver. Its Resolve method matches resolve.Resolver's signature.
type Scraper struct {
	config   ConfigSource
	keywords KeywordChooser
	rng      *rand.Rand

	mu     sync.Mutex
	memo   map[string]cachedIntent
	nowFn  func() time.Time
}

// New builds a Scraper. rng should be seeded once by the caller; reusing a
// single *rand.Rand across ticks is what makes the chooser's draws
// reproducible under a fixed seed in tests.
func New(config ConfigSource, keywords KeywordChooser, rng *rand.Rand) *Scraper {
	return &Scraper{
		config:   config,
		keywords: keywords,
		rng:      rng,
		memo:     make(map[string]cachedIntent),
		nowFn:    time.Now,
	}
}

// Resolve implements resolve.Resolver for scraper blades (§4.4). It serves
// the memoized intent for target.Address() when younger than the 10-second
// window, and otherwise runs the full selection pipeline.
func (s *Scraper) Resolve(target topology.Blade, capabilities map[string]string, topo *topology.Topology, self topology.Blade) (*intent.Intent, error) {
	host := target.Address()

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.memo[host]; ok && s.nowFn().Sub(cached.at) < memoWindow {
		metrics.ScraperIntentsMemoizedTotal.Inc()
		i := cached.intent
		return &i, nil
	}

	i, err := s.createIntent(target, capabilities, topo)
	if err != nil {
		return nil, err
	}
	metrics.ScraperIntentsGeneratedTotal.Inc()
	s.memo[host] = cachedIntent{intent: *i, at: s.nowFn()}
	return i, nil
}

func (s *Scraper) createIntent(target topology.Blade, capabilities map[string]string, topo *topology.Topology) (*intent.Intent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := s.config.FetchScrapersConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching scrapers configuration: %w", err)
	}

	focusLayer := buildFocusLayer(cfg.DomainOrder, topo.ClusterParameters.Focus)
	quotaLayer := chooser.Layer{} // reserved, §4.4 step 3

	domain, err := chooser.Choose(s.rng, chooser.NewLayer(cfg.DomainOrder, cfg.Weights), focusLayer, quotaLayer)
	if err != nil {
		return nil, fmt.Errorf("choosing scraping domain: %w", err)
	}

	moduleURLs, ok := cfg.EnabledModules[domain]
	if !ok || len(moduleURLs) == 0 {
		return nil, fmt.Errorf("domain %q has no enabled modules", domain)
	}
	module := normalizeModulePath(moduleURLs[0])

	keyword, algorithm, err := s.keywords.ChooseKeyword(module, cfg)
	if err != nil {
		return nil, fmt.Errorf("choosing keyword for %s: %w", module, err)
	}
	log.WithComponent("scraping").Debug().Str("module", module).Str("keyword", keyword).Str("algorithm", algorithm).Msg("selected keyword")

	params := map[string]interface{}{
		"url_parameters": map[string]interface{}{"keyword": keyword},
		"keyword":        keyword,
	}
	for k, v := range cfg.GenericModulesParameters {
		params[k] = v
	}
	for k, v := range cfg.SpecificModulesParameters[module] {
		params[k] = v
	}

	moduleVersion, ok := capabilities[module]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swarmerr.ErrUnknownModuleVersion, module)
	}
	clientVersion, ok := capabilities[resolve.ClientRepositoryPath]
	if !ok {
		return nil, fmt.Errorf("capability map has no entry for %s", resolve.ClientRepositoryPath)
	}

	spottingAddrs := topo.AddressesByRole(topology.RoleSpotting)
	if len(spottingAddrs) == 0 {
		return nil, fmt.Errorf("topology declares no spotting blades")
	}
	aggregator := spottingAddrs[s.rng.Intn(len(spottingAddrs))]

	now := s.nowFn()
	return &intent.Intent{
		ID:      intent.NewID(now, target.Host, target.Port),
		Host:    target.Address(),
		Blade:   topology.RoleScraper,
		Version: clientVersion,
		Params: intent.ScraperIntentParameters{
			Module:     module,
			Version:    moduleVersion,
			Target:     fmt.Sprintf("http://%s/push", aggregator),
			Parameters: params,
		},
	}, nil
}

// buildFocusLayer implements §4.4 step 2: every domain in domains gets 1.0
// if it's in focus, 0.0 otherwise. An empty/absent focus list produces a
// no-op layer (every domain passes unfiltered), matching the spec's
// "absent or malformed -> proceed with empty focus" fallback.
func buildFocusLayer(domains []string, focus []string) chooser.Layer {
	if len(focus) == 0 {
		return chooser.Layer{}
	}
	allowed := make(map[string]bool, len(focus))
	for _, f := range focus {
		allowed[f] = true
	}
	weights := make(map[string]float64, len(domains))
	for _, d := range domains {
		if allowed[d] {
			weights[d] = 1.0
		} else {
			weights[d] = 0.0
		}
	}
	return chooser.Layer{Keys: domains, Weights: weights}
}

// normalizeModulePath turns a GitHub repository URL into "owner/repo".
func normalizeModulePath(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return strings.Trim(repoURL, "/")
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return strings.Trim(u.Path, "/")
	}
	return segments[0] + "/" + segments[1]
}
