package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"story-stage/pkg/assets"
	"story-stage/pkg/config"
	"story-stage/pkg/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		logging.Init(cfg.Logging.Level, cfg.Logging.Format)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) library() *assets.Library {
	cfg := c.config
	return assets.NewLibrary(cfg.Assets.Dir, cfg.Assets.Scenes, cfg.Assets.Overlays)
}

// shouldSkipConfig lets commands that create configuration run without one.
func shouldSkipConfig(cmd *cobra.Command) bool {
	return cmd.Annotations["skipConfig"] == "true"
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "story-stage",
		Short:         "Live compositor and narration sequencer for interactive storytelling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newSyncAssetsCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())
	return rootCmd
}
