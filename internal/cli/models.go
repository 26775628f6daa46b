package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newModelsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models settings can name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.newService()
			if err != nil {
				return err
			}
			defer svc.Close()

			current := svc.Settings().Model
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tID\tPROVIDER\tCONTEXT")
			for _, info := range svc.ListModels() {
				marker := ""
				if info.ID == current {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, info.ID, info.Provider, info.ContextWindow)
			}
			return w.Flush()
		},
	}
}
