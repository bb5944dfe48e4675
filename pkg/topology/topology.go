// Package topology loads and represents the static swarm topology: the set
// of blade declarations and cluster-wide parameters the orchestrator and
// every blade are started with.
package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Role identifies the kind of work a blade performs.
type Role string

const (
	RoleScraper      Role = "scraper"
	RoleSpotting     Role = "spotting"
	RoleOrchestrator Role = "orchestrator"
	RoleMonitor      Role = "monitor"
)

// Blade is one blade declaration within the topology. It is immutable for
// the life of the orchestrator process.
type Blade struct {
	Name    string `yaml:"name" json:"name"`
	Role    Role   `yaml:"blade" json:"blade"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Managed bool   `yaml:"managed" json:"managed"`
	Venv    string `yaml:"venv" json:"venv"`
}

// Address returns the blade's "host:port" form, used as both the Intent.Host
// field and the memoization key.
func (b Blade) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// DB holds the version store's connection parameters.
type DB struct {
	Driver   string `yaml:"driver" json:"driver"`
	Database string `yaml:"database" json:"database"`
}

// ClusterParameters is static_cluster_parameters from §3/§6: scalar and
// record configuration shared by every blade.
type ClusterParameters struct {
	OrchestratorIntervalSeconds int      `yaml:"orchestrator_interval_in_seconds" json:"orchestrator_interval_in_seconds"`
	GithubCacheThresholdMinutes int      `yaml:"github_cache_threshold_minutes" json:"github_cache_threshold_minutes"`
	DatabaseProvider            string   `yaml:"database_provider" json:"database_provider"`
	DB                          DB       `yaml:"db" json:"db"`
	Scrapers                    []string `yaml:"scrapers" json:"scrapers"`
	Focus                       []string `yaml:"focus" json:"focus"`
}

// Topology is the static declaration of every blade in the swarm plus the
// cluster parameters shared by all of them. It is loaded once at startup.
type Topology struct {
	Blades             []Blade            `yaml:"blades" json:"blades"`
	ClusterParameters  ClusterParameters  `yaml:"static_cluster_parameters" json:"static_cluster_parameters"`
}

const (
	defaultOrchestratorIntervalSeconds = 10
	defaultGithubCacheThresholdMinutes = 10
)

// Load reads and validates a topology file from path, applying the defaults
// named in §6.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}

	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing topology file %s: %w", path, err)
	}

	if t.ClusterParameters.OrchestratorIntervalSeconds == 0 {
		t.ClusterParameters.OrchestratorIntervalSeconds = defaultOrchestratorIntervalSeconds
	}
	if t.ClusterParameters.GithubCacheThresholdMinutes == 0 {
		t.ClusterParameters.GithubCacheThresholdMinutes = defaultGithubCacheThresholdMinutes
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks blade name uniqueness and role well-formedness.
func (t *Topology) Validate() error {
	if len(t.Blades) == 0 {
		return fmt.Errorf("topology declares no blades")
	}

	seen := make(map[string]bool, len(t.Blades))
	for _, b := range t.Blades {
		if b.Name == "" {
			return fmt.Errorf("topology contains a blade with an empty name")
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate blade name %q in topology", b.Name)
		}
		seen[b.Name] = true

		switch b.Role {
		case RoleScraper, RoleSpotting, RoleOrchestrator, RoleMonitor:
		default:
			return fmt.Errorf("blade %q declares unknown role %q", b.Name, b.Role)
		}

		if b.Host == "" {
			return fmt.Errorf("blade %q has an empty host", b.Name)
		}
	}
	return nil
}

// BladesByRole returns every blade declared with the given role, in
// topology order.
func (t *Topology) BladesByRole(role Role) []Blade {
	var result []Blade
	for _, b := range t.Blades {
		if b.Role == role {
			result = append(result, b)
		}
	}
	return result
}

// AddressesByRole returns "host:port" for every blade of the given role,
// used by the scraper resolver to pick a random spotting target (§4.4 step
// 8).
func (t *Topology) AddressesByRole(role Role) []string {
	blades := t.BladesByRole(role)
	addrs := make([]string, len(blades))
	for i, b := range blades {
		addrs[i] = b.Address()
	}
	return addrs
}
