package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracechain/internal/core"
	"tracechain/internal/scenario"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Replay scripted ledger sessions",
}

var scenarioRunCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a YAML scenario against a fresh in-memory ledger and print its trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		report, err := scenario.Run(cmd.Context(), sc, core.WithLogger(core.NewZapLogger(zap.L())))
		if err != nil {
			return err
		}
		data, err := report.JSON()
		if err != nil {
			return err
		}
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return eris.Wrap(err, "write trace")
		}
		if !report.Passed() {
			return eris.Errorf("scenario %s: %d expectation(s) failed", sc.Name, len(report.Failures))
		}
		return nil
	},
}

func init() {
	scenarioCmd.AddCommand(scenarioRunCmd)
	rootCmd.AddCommand(scenarioCmd)
}
