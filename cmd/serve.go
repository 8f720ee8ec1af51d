package cmd

import (
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/livecapture/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control server for remote session control",
	Long: `Start the LiveCapture control server to drive the capture session over
HTTP: start/stop capture, per-channel record/stop, mute routing, device
information and prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		notices := &server.Notices{}
		coord, err := newCoordinator(cfg, notices, notices)
		if err != nil {
			return fmt.Errorf("failed to assemble session: %w", err)
		}

		srv := server.New(coord, notices, cfg, port)
		slog.Info("LiveCapture control server starting", "port", port, "config", cfgFile)

		// Blocks until the listener fails.
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the control server (default from config)")
}
