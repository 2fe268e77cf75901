package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lambda-web-adapter/internal/deploy"
	"lambda-web-adapter/internal/prerendered"
)

func manifestCmd() *cobra.Command {
	var (
		output string
		strict bool
		routes bool
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Write the prerendered page manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			if output == "" {
				output = opts.Manifest
			}

			m, err := deploy.BuildManifest(opts)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create manifest directory: %w", err)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create manifest: %w", err)
			}
			defer f.Close()

			if err := prerendered.WriteManifest(f, m); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d pages, %d routes\n", output, len(m.Files), len(m.Mappings))

			if routes {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ROUTE\tFILE")
				for _, key := range m.Mappings.Keys() {
					fmt.Fprintf(w, "%s\t%s\n", key, m.Mappings[key])
				}
				w.Flush()
			}

			if len(m.Collisions) > 0 {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ROUTE\tPREVIOUS\tWINNER")
				for _, c := range m.Collisions {
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.Key, c.Previous, c.Current)
				}
				w.Flush()

				if strict {
					return fmt.Errorf("%d ambiguous prerendered routes", len(m.Collisions))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Manifest path (default from options)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when two pages claim the same route")
	cmd.Flags().BoolVar(&routes, "routes", false, "Print every route and the page it serves")

	return cmd
}
