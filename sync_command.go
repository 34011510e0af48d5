package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"story-stage/pkg/assets"
	"story-stage/pkg/logging"
)

func newSyncAssetsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-assets",
		Short: "Download new or changed show media from S3 into the asset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			s3cfg := assets.S3Config{
				Region:      cfg.Assets.S3.Region,
				AccessKey:   cfg.Assets.S3.AccessKey,
				SecretKey:   cfg.Assets.S3.SecretKey,
				Bucket:      cfg.Assets.S3.Bucket,
				Prefix:      cfg.Assets.S3.Prefix,
				Concurrency: cfg.Assets.S3.Concurrency,
			}
			client, err := assets.NewS3Client(s3cfg)
			if err != nil {
				return err
			}
			syncer, err := assets.NewSyncer(client, s3cfg, cfg.Assets.Dir)
			if err != nil {
				return err
			}

			res, err := syncer.Sync(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "downloaded %d, up to date %d, failed %d\n", len(res.Downloaded), len(res.Skipped), len(res.Failed))
			failed := make([]string, 0, len(res.Failed))
			for key := range res.Failed {
				failed = append(failed, key)
			}
			sort.Strings(failed)
			for _, key := range failed {
				fmt.Fprintf(out, "  failed %s: %v\n", key, res.Failed[key])
			}
			if len(failed) > 0 {
				logging.WithComponent("assets").Warn().Int("failed", len(failed)).Msg("asset sync incomplete")
				return fmt.Errorf("%d assets failed to download", len(failed))
			}
			return nil
		},
	}
}
