package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

var lotCmd = &cobra.Command{
	Use:   "lot",
	Short: "Inspect lots in the configured store",
}

type lotReport struct {
	Product   domain.Product `json:"product"`
	Analytics core.Analytics `json:"analytics"`
}

var lotShowCmd = &cobra.Command{
	Use:   "show <lot>",
	Short: "Print a lot record with its analytics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		product, err := env.Service.GetProduct(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		summary, err := env.Service.Analytics(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, lotReport{Product: product, Analytics: summary})
	},
}

var lotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered lot identifiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		lots, err := env.Service.ListLots(cmd.Context())
		if err != nil {
			return err
		}
		for _, lot := range lots {
			fmt.Fprintln(cmd.OutOrStdout(), lot)
		}
		return nil
	},
}

var lotPassportCmd = &cobra.Command{
	Use:   "passport <lot>",
	Short: "Publish a consumer passport for a lot to the configured archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		receipt, err := env.Service.PublishPassport(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, receipt)
	},
}

var lotPassportsCmd = &cobra.Command{
	Use:   "passports <lot> [id]",
	Short: "List archived passports of a lot, or print one by id",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 2 {
			passport, _, err := env.Service.ReadPassport(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, passport)
		}
		infos, err := env.Service.ListPassports(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
		}
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	lotCmd.AddCommand(lotShowCmd, lotListCmd, lotPassportCmd, lotPassportsCmd)
	rootCmd.AddCommand(lotCmd)
}
