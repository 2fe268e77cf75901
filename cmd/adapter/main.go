package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lambda-web-adapter/internal/deploy"
)

var (
	optionsFile string
	logLevel    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "adapter",
		Short: "Deployment tooling for the serverless web adapter",
		Long:  "Builds the prerendered manifest, publishes static assets and tests edge rewrites",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			logrus.SetLevel(level)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&optionsFile, "file", "f", "", "Adapter options file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	rootCmd.AddCommand(
		manifestCmd(),
		publishCmd(),
		rewriteCmd(),
		exampleCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadOptions() (*deploy.Options, error) {
	return deploy.LoadOptions(optionsFile)
}

func exampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an example options file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), deploy.ExampleYAML())
		},
	}
}
