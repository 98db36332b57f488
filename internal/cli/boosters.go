package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"coinfall/client/internal/catalog"
	"coinfall/client/internal/config"
)

// NewBoostersCommand lists the booster catalog the client would load,
// validating designer edits without starting the client.
func NewBoostersCommand(opts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "boosters",
		Short: "List and validate the booster catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath, nil)
			if err != nil {
				return err
			}
			shop, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(shop.Definitions())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tTARGET\tMULTIPLIER\tDURATION\tPRICE")
			for _, def := range shop.Definitions() {
				fmt.Fprintf(w, "%s\t%s\tx%g\t%s\t%d\n",
					def.Type, def.Target, def.Multiplier, def.Duration(), def.Price)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the catalog as JSON")
	return cmd
}
