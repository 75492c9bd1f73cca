package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skiffsync/skiff/internal/config"
	"github.com/skiffsync/skiff/internal/remote"
	"github.com/skiffsync/skiff/internal/utils"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var bucket string
	var region string
	var endpoint string
	var accessKey string
	var secretKey string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the Skiff config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			out := cmd.OutOrStdout()

			path := configPath(cmd)
			if utils.FileExists(path) {
				cfg, err := config.Load(path)
				if err != nil {
					// never clobber a config that merely fails to parse
					return fmt.Errorf("config already exists at %s but cannot be read: %w", path, err)
				}
				fmt.Fprintln(out, "Skiff is already initialized")
				printConfigSummary(out, cfg)
				return nil
			}

			if bucket == "" {
				return fmt.Errorf("bucket is required")
			}

			cfg := config.New()
			cfg.Path = path
			cfg.Remote = remote.S3Config{
				Bucket:    bucket,
				Region:    region,
				Endpoint:  endpoint,
				AccessKey: accessKey,
				SecretKey: secretKey,
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Fprintln(out, "Skiff initialized")
			printConfigSummary(out, cfg)
			fmt.Fprintf(out, "\nAdd a folder with %s\n", cyan("skiff roots add <path> --remote <prefix>"))
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "S3 bucket name")
	cmd.Flags().StringVarP(&region, "region", "r", "", "S3 region")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "custom S3 endpoint, e.g. a MinIO URL")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "S3 access key (or set SKIFF_ACCESS_KEY)")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "S3 secret key (or set SKIFF_SECRET_KEY)")

	return cmd
}
