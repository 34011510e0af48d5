package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"story-stage/pkg/assets"
	"story-stage/pkg/config"
	"story-stage/pkg/mpeg"
	"story-stage/pkg/script"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		scriptPath string
		probe      bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, scene assets and an optional rehearsal script",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := checkOptions{scriptPath: scriptPath, width: cfg.Output.Width, height: cfg.Output.Height}
			if probe {
				opts.probe = mpeg.Probe
			}
			return runCheck(cmd, ctx.library(), opts)
		},
	}
	cmd.Flags().StringVar(&scriptPath, "script", "", "Rehearsal script to validate")
	cmd.Flags().BoolVar(&probe, "probe", false, "Open every configured asset and report codec, size and keying hints")
	return cmd
}

type checkOptions struct {
	scriptPath    string
	width, height int
	probe         func(path string) (assets.MediaInfo, error)
}

func runCheck(cmd *cobra.Command, lib *assets.Library, opts checkOptions) error {
	scriptPath := opts.scriptPath
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "asset dir: %s\n", lib.Dir())
	fmt.Fprintf(out, "scenes: %d, overlays: %d\n", len(lib.SceneIDs()), len(lib.OverlayIDs()))

	videos, err := assets.ListVideos(lib.Dir())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Fprintf(out, "video files on disk: %d\n", len(videos))

	var problems []error
	for _, m := range lib.Missing() {
		fmt.Fprintf(out, "  missing %s\n", m)
		problems = append(problems, fmt.Errorf("missing %s", m))
	}

	if opts.probe != nil {
		problems = append(problems, probeAssets(cmd, lib, opts)...)
	}

	if scriptPath != "" {
		s, err := script.Load(scriptPath)
		if err != nil {
			problems = append(problems, err)
			fmt.Fprintf(out, "script: %v\n", err)
		} else {
			fmt.Fprintf(out, "script %q: %d steps over %s\n", s.Name, len(s.Steps), s.Duration())
			for _, st := range s.Steps {
				if st.Action != script.ActionBackground || st.Target == "" {
					continue
				}
				if _, err := lib.ResolveBackground(st.Target); err != nil {
					fmt.Fprintf(out, "  step at %s: %v\n", st.At, err)
					problems = append(problems, err)
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("check failed: %w", errors.Join(problems...))
	}
	fmt.Fprintln(out, "ok")
	return nil
}

// probeAssets decodes the header of every configured asset that exists and
// prints advice. Files that fail to open are problems; advice is not.
func probeAssets(cmd *cobra.Command, lib *assets.Library, opts checkOptions) []error {
	out := cmd.OutOrStdout()
	var problems []error

	report := func(kind, id, path string, overlay bool) {
		if _, err := os.Stat(path); err != nil {
			return
		}
		info, err := opts.probe(path)
		if err != nil {
			fmt.Fprintf(out, "  %s %s: cannot decode: %v\n", kind, id, err)
			problems = append(problems, fmt.Errorf("%s %s: %w", kind, id, err))
			return
		}
		alpha := ""
		if info.HasAlpha {
			alpha = " alpha"
		}
		fmt.Fprintf(out, "  %s %s: %s %dx%d %.2ffps%s\n", kind, id, info.Codec, info.Width, info.Height, info.FPS, alpha)
		for _, hint := range assets.Advise(info, overlay, opts.width, opts.height) {
			fmt.Fprintf(out, "    - %s\n", hint)
		}
	}

	for _, id := range lib.SceneIDs() {
		path, _ := lib.ResolveBackground(id)
		report("scene", id, path, false)
	}
	for _, id := range lib.OverlayIDs() {
		path, _ := lib.ResolveOverlay(id)
		report("overlay", id, path, true)
	}
	return problems
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "stage.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, use --force to overwrite", path)
			}
			if err := config.Default().Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
