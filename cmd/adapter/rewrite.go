package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lambda-web-adapter/internal/edge"
	"lambda-web-adapter/internal/prerendered"
)

func rewriteCmd() *cobra.Command {
	var (
		domainName string
		kind       string
	)

	cmd := &cobra.Command{
		Use:   "rewrite [event.json]",
		Short: "Run the edge rewrite on an event",
		Long:  "Reads a CloudFront Functions or Lambda@Edge viewer request event from a file or stdin and prints the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			if domainName == "" {
				domainName = opts.DomainName
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open event: %w", err)
				}
				defer f.Close()
				in = f
			}

			var out any
			switch kind {
			case "function":
				var ev edge.Event
				if err := json.NewDecoder(in).Decode(&ev); err != nil {
					return fmt.Errorf("decode event: %w", err)
				}
				out = edge.HandleEvent(&ev, domainName).Value()
			case "lambda-edge":
				var ev edge.OriginEvent
				if err := json.NewDecoder(in).Decode(&ev); err != nil {
					return fmt.Errorf("decode event: %w", err)
				}
				m, err := prerendered.LoadManifest(opts.Manifest)
				if err != nil {
					return err
				}
				out, err = edge.HandleOriginEvent(&ev, m.EdgeTable())
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown event kind %q: use function or lambda-edge", kind)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&domainName, "domain", "", "Canonical domain name (default from options)")
	cmd.Flags().StringVar(&kind, "kind", "function", "Event kind: function or lambda-edge")

	return cmd
}
