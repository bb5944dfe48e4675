package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exorde-labs/swarm-orchestrator/pkg/blade"
	"github.com/exorde-labs/swarm-orchestrator/pkg/bladestate"
	"github.com/exorde-labs/swarm-orchestrator/pkg/control"
	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/metrics"
	"github.com/exorde-labs/swarm-orchestrator/pkg/monitor"
	"github.com/exorde-labs/swarm-orchestrator/pkg/resolve"
	"github.com/exorde-labs/swarm-orchestrator/pkg/scraping"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/exorde-labs/swarm-orchestrator/pkg/version"
	"github.com/spf13/cobra"
)

var bladeCmd = &cobra.Command{
	Use:   "blade",
	Short: "Run a single blade process",
}

func init() {
	bladeCmd.AddCommand(bladeRunCmd)

	bladeRunCmd.Flags().String("blade", "", "JSON-encoded blade declaration (§6)")
	bladeRunCmd.Flags().String("topology", "", "JSON-encoded topology document (§6)")
	bladeRunCmd.Flags().String("data-dir", ".", "local state directory (scraper install ledger)")
	bladeRunCmd.Flags().String("scrapers-config-url", "http://localhost:9900/scrapers_configuration", "scrapers configuration endpoint (orchestrator role only, §3)")
	_ = bladeRunCmd.MarkFlagRequired("blade")
	_ = bladeRunCmd.MarkFlagRequired("topology")
}

var bladeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this process as one blade of the swarm, per its declared role",
	RunE: func(cmd *cobra.Command, args []string) error {
		bladeJSON, _ := cmd.Flags().GetString("blade")
		topologyJSON, _ := cmd.Flags().GetString("topology")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		scrapersConfigURL, _ := cmd.Flags().GetString("scrapers-config-url")

		var self topology.Blade
		if err := json.Unmarshal([]byte(bladeJSON), &self); err != nil {
			return fmt.Errorf("decoding --blade: %w", err)
		}
		var topo topology.Topology
		if err := json.Unmarshal([]byte(topologyJSON), &topo); err != nil {
			return fmt.Errorf("decoding --topology: %w", err)
		}
		if err := topo.Validate(); err != nil {
			return fmt.Errorf("invalid topology: %w", err)
		}

		logger := log.WithBlade(self.Name)
		logger.Info().Str("role", string(self.Role)).Str("address", self.Address()).Msg("starting blade")

		metrics.SetVersion(buildVersion)
		metrics.RegisterComponent("topology", true, "loaded")

		var handler http.Handler
		var stop func()

		switch self.Role {
		case topology.RoleScraper:
			metrics.RegisterComponent("version_store", true, "not used by this role")
			h, s, err := runScraper(self, &topo, dataDir)
			if err != nil {
				return err
			}
			handler, stop = h, s
		case topology.RoleOrchestrator:
			metrics.RegisterComponent("version_store", false, "connecting")
			h, s, err := runOrchestrator(self, &topo, scrapersConfigURL)
			if err != nil {
				return err
			}
			handler, stop = h, s
		case topology.RoleMonitor:
			metrics.RegisterComponent("version_store", true, "not used by this role")
			m := monitor.New()
			handler, stop = m.Handler(), m.Close
		case topology.RoleSpotting:
			metrics.RegisterComponent("version_store", true, "not used by this role")
			handler, stop = blade.NewServer(self, &topo, nil).Handler(), func() {}
		default:
			return fmt.Errorf("blade %q declares unsupported role %q", self.Name, self.Role)
		}

		mux := http.NewServeMux()
		mux.Handle("/", handler)
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: fmt.Sprintf(":%d", self.Port), Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			stop()
			return fmt.Errorf("blade server failed: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		stop()
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

func runScraper(self topology.Blade, topo *topology.Topology, dataDir string) (http.Handler, func(), error) {
	state, err := bladestate.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening blade state: %w", err)
	}

	restart := func() {
		log.WithComponent("blade.scraper").Warn().Msg("exiting for planned restart after module install")
		os.Exit(0)
	}
	executor := blade.NewScraperExecutor(self, state, blade.PipInstaller{}, blade.SubprocessRunner{}, restart)
	server := blade.NewServer(self, topo, executor)

	return server.Handler(), func() { _ = state.Close() }, nil
}

func runOrchestrator(self topology.Blade, topo *topology.Topology, scrapersConfigURL string) (http.Handler, func(), error) {
	db, err := version.Connect(topo.ClusterParameters.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting version store: %w", err)
	}
	store := version.NewGormStore(db, version.NewGithubTagSource(), time.Duration(topo.ClusterParameters.GithubCacheThresholdMinutes)*time.Minute)
	if err := store.Setup(); err != nil {
		return nil, nil, fmt.Errorf("setting up version store: %w", err)
	}

	tracked := append([]string{resolve.ClientRepositoryPath}, topo.ClusterParameters.Scrapers...)
	if err := store.EnsureTracked(tracked); err != nil {
		return nil, nil, fmt.Errorf("tracking configured repositories: %w", err)
	}
	metrics.RegisterComponent("version_store", true, "ready")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	scraper := scraping.New(scraping.NewHTTPConfigSource(scrapersConfigURL), scraping.RandomKeywordChooser{Rand: rng}, rng)

	orch := control.New(control.Config{
		Topology: topo,
		Self:     self,
		Store:    store,
		Resolvers: map[topology.Role]resolve.Resolver{
			topology.RoleOrchestrator: resolve.Orchestrator,
			topology.RoleSpotting:     resolve.Spotting,
			topology.RoleScraper:      scraper.Resolve,
		},
	})
	orch.Start()

	server := blade.NewServer(self, topo, nil)
	return server.Handler(), orch.Stop, nil
}
