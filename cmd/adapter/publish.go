package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/deploy"
)

func publishCmd() *cobra.Command {
	var (
		bucket    string
		region    string
		prefix    string
		target    string
		overwrite bool
		prune     bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload client, static and prerendered files",
		Long:  "Uploads build output to S3, or to a local directory with --target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("overwrite") {
				opts.Overwrite = overwrite
			}
			if cmd.Flags().Changed("prune") {
				opts.Prune = prune
			}
			if bucket != "" {
				opts.Bucket = bucket
			}
			if region != "" {
				opts.Region = region
			}
			if prefix != "" {
				opts.Prefix = prefix
			}

			cfg := &storage.StorageConfig{
				Type:   string(storage.StorageTypeS3),
				Bucket: opts.Bucket,
				Region: opts.Region,
				Prefix: opts.Prefix,
			}
			if target != "" {
				cfg = &storage.StorageConfig{
					Type:     string(storage.StorageTypeLocal),
					BasePath: target,
				}
			} else if opts.Bucket == "" {
				return fmt.Errorf("a bucket is required: set it in the options file or pass --bucket")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dst, err := storage.CreateFromConfig(ctx, cfg)
			if err != nil {
				return err
			}
			defer dst.Close()

			report, err := deploy.NewPublisher(dst, opts).Publish(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files (%d bytes), skipped %d existing, deleted %d stale\n",
				len(report.Uploaded), report.Bytes, len(report.Skipped), len(report.Deleted))
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket")
	cmd.Flags().StringVar(&region, "region", "", "S3 region")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix inside the bucket")
	cmd.Flags().StringVar(&target, "target", "", "Publish to a local directory instead of S3")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace objects that already exist")
	cmd.Flags().BoolVar(&prune, "prune", false, "Delete stored objects that are not part of the build")

	return cmd
}
