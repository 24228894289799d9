package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-editor/engine"
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/testbed"
)

var (
	runConfigPath string
	runBackend    string
	runFrames     uint64
	runWatch      bool
	runSeed       uint64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a headless editor session",
	Example: `  anima-editor run --frames 300
  anima-editor run --config editor.toml --watch
  anima-editor run --backend vulkan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		return runSession(cmd, cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Configuration file (TOML)")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "Renderer backend, overrides the configuration (software, vulkan)")
	runCmd.Flags().Uint64Var(&runFrames, "frames", 0, "Frames to run, overrides the configuration (0 runs until interrupted)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Reload the log level when the configuration file changes")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 1, "Seed of the editor workload")
	rootCmd.AddCommand(runCmd)
}

func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if runConfigPath != "" {
		loaded, err := config.Load(runConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("backend") {
		cfg.Renderer.Backend = runBackend
	}
	if cmd.Flags().Changed("frames") {
		cfg.Editor.Frames = runFrames
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func runSession(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	game := testbed.NewTestGame(engine.NewApplicationConfig("anima-editor", cfg), runSeed)
	e, err := engine.New(game.Game)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}

	if runWatch {
		if runConfigPath == "" {
			core.LogWarn("--watch needs --config, not watching")
		} else {
			watcher, err := config.NewWatcher(runConfigPath, func(c *config.Config) {
				if err := core.EventFire(core.EventContext{Type: config.EVENT_CODE_CONFIG_RELOADED, Data: c}); err != nil {
					core.LogWarn("configuration reload: %s", err)
				}
			})
			if err != nil {
				return errors.Join(err, e.Shutdown(context.Background()))
			}
			defer watcher.Close()
		}
	}

	runErr := e.Run(ctx)
	stats := game.Stats()
	shutdownErr := e.Shutdown(context.Background())

	out := cmd.OutOrStdout()
	metrics := e.Metrics()
	fmt.Fprintf(out, "frames:           %d (%.3f ms average)\n", metrics.TotalFrames(), metrics.FrameTime())
	fmt.Fprintf(out, "tables allocated: %d\n", stats.TablesAllocated)
	fmt.Fprintf(out, "tables released:  %d\n", stats.TablesReleased)
	fmt.Fprintf(out, "tables missed:    %d\n", stats.TablesMissed)
	fmt.Fprintf(out, "viewport resizes: %d\n", stats.Resizes)
	fmt.Fprintf(out, "baked targets:    %d\n", stats.BakedTargets)
	return errors.Join(runErr, shutdownErr)
}
