// Command swarm is the single binary for every process in the swarm: the
// launcher that supervises managed blades, and the blade/orchestrator
// processes themselves (§6).
package main

import (
	"fmt"
	"os"

	"github.com/exorde-labs/swarm-orchestrator/pkg/log"
	"github.com/spf13/cobra"
)

// buildVersion is reported on /health; bump alongside tagged releases.
const buildVersion = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Run a swarm blade, orchestrator, or the launcher that supervises both",
	Long: `swarm runs the processes of an exorde-style scraping swarm: the
launcher that reads a static topology and supervises one subprocess per
managed blade, and the blade and orchestrator processes themselves.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("jlog", false, "Output logs as JSON lines")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(bladeCmd)
	rootCmd.AddCommand(orchestratorCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	jlog, _ := rootCmd.PersistentFlags().GetBool("jlog")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: jlog,
	})
}
