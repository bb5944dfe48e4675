package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/exorde-labs/swarm-orchestrator/pkg/topology"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Load a topology and supervise one subprocess per managed blade (§6)",
	RunE:  runLaunch,
}

func init() {
	launchCmd.Flags().String("config", "topology/standalone.yaml", "path to the topology file")
	launchCmd.Flags().String("print-cmd-only", "", "emit the shell invocation for the named blade and exit, without running it")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	printCmdOnly, _ := cmd.Flags().GetString("print-cmd-only")

	topo, err := topology.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load topology from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	if printCmdOnly != "" {
		b, ok := findBlade(topo, printCmdOnly)
		if !ok {
			return fmt.Errorf("topology declares no blade named %q", printCmdOnly)
		}
		fmt.Println(bladeCommandLine(b, topo))
		return nil
	}

	logger := log.WithComponent("launcher")
	supervisor := newSupervisor(topo, logger)
	supervisor.startManaged()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down managed blades")
	supervisor.stopAll()
	return nil
}

func findBlade(topo *topology.Topology, name string) (topology.Blade, bool) {
	for _, b := range topo.Blades {
		if b.Name == name {
			return b, true
		}
	}
	return topology.Blade{}, false
}

// bladeCommandLine builds the `swarm blade run ...` invocation for a
// managed blade, reproduced for --print-cmd-only (§6) exactly as the
// supervisor would spawn it.
func bladeCommandLine(b topology.Blade, topo *topology.Topology) string {
	bladeJSON, _ := json.Marshal(b)
	topologyJSON, _ := json.Marshal(topo)
	return fmt.Sprintf("swarm blade run --blade %s --topology %s --data-dir %s --jlog",
		shellQuote(string(bladeJSON)), shellQuote(string(topologyJSON)), shellQuote(bladeDataDir(b)))
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

// bladeDataDir mirrors multi.py's ensure_virtualenv bookkeeping
// structurally (one working directory per managed blade) without the
// Python package install step (§ SUPPLEMENTED FEATURES).
func bladeDataDir(b topology.Blade) string {
	return filepath.Join("state", b.Name)
}

// supervisor spawns and restarts one `swarm blade run` subprocess per
// managed blade declared in the topology. A scraper blade exits
// intentionally after installing a module (§4.7, §9); the supervisor
// treats any exit of a still-wanted blade as a request to respawn it.
type supervisor struct {
	topo   *topology.Topology
	logger zerolog.Logger

	mu      sync.Mutex
	procs   map[string]*exec.Cmd
	stopped bool
	wg      sync.WaitGroup
}

func newSupervisor(topo *topology.Topology, logger zerolog.Logger) *supervisor {
	return &supervisor{
		topo:   topo,
		logger: logger,
		procs:  make(map[string]*exec.Cmd),
	}
}

// startManaged spawns one supervised goroutine per managed blade. Each
// goroutine restarts its subprocess whenever it exits, until stopAll runs.
func (s *supervisor) startManaged() {
	for _, b := range s.topo.Blades {
		if !b.Managed {
			s.logger.Info().Str("blade", b.Name).Msg("blade is unmanaged, launcher will not supervise it")
			continue
		}
		b := b
		s.wg.Add(1)
		go s.supervise(b)
	}
}

func (s *supervisor) supervise(b topology.Blade) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		if err := os.MkdirAll(bladeDataDir(b), 0o755); err != nil {
			s.logger.Error().Err(err).Str("blade", b.Name).Msg("failed to create blade data directory")
			return
		}

		bladeJSON, _ := json.Marshal(b)
		topologyJSON, _ := json.Marshal(s.topo)

		cmd := exec.Command(os.Args[0], "blade", "run",
			"--blade", string(bladeJSON),
			"--topology", string(topologyJSON),
			"--data-dir", bladeDataDir(b),
			"--jlog",
		)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		s.mu.Lock()
		s.procs[b.Name] = cmd
		s.mu.Unlock()

		s.logger.Info().Str("blade", b.Name).Str("role", string(b.Role)).Msg("spawning managed blade")

		err := cmd.Run()

		s.mu.Lock()
		stopped := s.stopped
		delete(s.procs, b.Name)
		s.mu.Unlock()

		if stopped {
			return
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("blade", b.Name).Msg("managed blade exited, respawning")
		} else {
			s.logger.Info().Str("blade", b.Name).Msg("managed blade exited cleanly, respawning")
		}
	}
}

// stopAll signals every managed subprocess and waits for the supervisor
// goroutines to observe their exit.
func (s *supervisor) stopAll() {
	s.mu.Lock()
	s.stopped = true
	for name, cmd := range s.procs {
		if cmd.Process != nil {
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				s.logger.Warn().Err(err).Str("blade", name).Msg("failed to signal managed blade")
			}
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}
