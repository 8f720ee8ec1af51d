package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/livecapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "livecapture",
	Short: "Multi-channel live audio capture, encoding and upload",
	Long: `LiveCapture coordinates a multi-channel live audio capture session:
it acquires an input device, splits its stream into independently
start/stoppable channels, buffers each channel into encodable segments,
encodes them and uploads the encoded output.

Sessions survive device permission loss, partial channel failures and
mid-session reconfiguration.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		// The devices command only enumerates hardware and needs no config.
		if cmd.Name() == "devices" {
			return nil
		}

		activeProfile := profile
		if activeProfile == "" {
			if saved, err := config.LoadProfileSelection(cfgFile); err == nil {
				activeProfile = saved
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, activeProfile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/livecapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
