package main

import "github.com/spf13/cobra"

// orchestratorCmd is a convenience alias for `swarm blade run`: an
// orchestrator is just a blade whose declared role is "orchestrator", but
// operators reach for "swarm orchestrator run" out of habit, so it's kept
// as a thin wrapper around the same flags and RunE.
var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Alias for `swarm blade run` scoped to an orchestrator blade",
}

var orchestratorRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this process as the orchestrator blade",
	RunE:  bladeRunCmd.RunE,
}

func init() {
	orchestratorCmd.AddCommand(orchestratorRunCmd)

	orchestratorRunCmd.Flags().AddFlagSet(bladeRunCmd.Flags())
	_ = orchestratorRunCmd.MarkFlagRequired("blade")
	_ = orchestratorRunCmd.MarkFlagRequired("topology")
}
