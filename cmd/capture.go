package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var captureChannels []int

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a capture session from the command line",
	Long: `Start a capture session on the default input device, record the
selected channels (all negotiated channels when none are given) and upload
encoded segments until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := newCoordinator(cfg, logSink{}, logSink{})
		if err != nil {
			return fmt.Errorf("failed to assemble session: %w", err)
		}

		channels := coord.StartCapture(cmd.Context())
		if channels == 0 {
			return fmt.Errorf("capture did not start, see warnings above")
		}
		slog.Info("capture session running", "session", coord.ID(), "channels", channels)

		selected := captureChannels
		if len(selected) == 0 {
			for i := 0; i < channels; i++ {
				selected = append(selected, i)
			}
		}
		for _, ch := range selected {
			if ch < 0 || ch >= channels {
				slog.Warn("skipping channel outside negotiated range", "channel", ch, "channels", channels)
				continue
			}
			coord.RecordInputChannel(ch)
		}

		if coord.RecordingChannelCount() == 0 {
			coord.StopCapture()
			return fmt.Errorf("no channel could start recording")
		}

		slog.Info("recording, press Ctrl+C to stop", "recording_channels", coord.RecordingChannelCount())

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
		case <-cmd.Context().Done():
		}
		slog.Info("stopping capture session...")

		for _, ch := range selected {
			coord.StopRecordInputChannel(ch)
		}
		coord.StopCapture()
		return nil
	},
}

func init() {
	captureCmd.Flags().IntSliceVar(&captureChannels, "channels", nil, "channel indexes to record (default: all)")
}
