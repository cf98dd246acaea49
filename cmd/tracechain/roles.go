package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Inspect role assignments",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities holding a role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initLedger(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		roles, err := env.Service.ListRoles(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tROLE\tASSIGNED BY\tASSIGNED AT")
		for _, r := range roles {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Identity, r.Role, r.AssignedBy, r.AssignedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return w.Flush()
	},
}

func init() {
	rolesCmd.AddCommand(rolesListCmd)
	rootCmd.AddCommand(rolesCmd)
}
