package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/livecapture/internal/device"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio input devices",
	Long:  `List all input-capable audio devices known to the PortAudio backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listInputDevices()
	},
}

func listInputDevices() error {
	fmt.Printf("🎵 Audio Input Devices (%s)\n", runtime.GOOS)
	fmt.Printf("═══════════════════════════════════════\n\n")

	devices, err := device.ListInputDevices()
	if err != nil {
		return fmt.Errorf("failed to list input devices: %w", err)
	}

	fmt.Printf("📋 INPUT DEVICES (%d found):\n", len(devices))
	for i, d := range devices {
		host := ""
		if d.HostApi != nil {
			host = d.HostApi.Name
		}
		fmt.Printf("  %d. %s [%s] — %d input channels, %.0f Hz default\n",
			i+1, d.Name, host, d.MaxInputChannels, d.DefaultSampleRate)
	}

	fmt.Printf("\n💡 Usage:\n")
	fmt.Printf("  • The capture session uses the host's default input device\n")
	fmt.Printf("  • Select it with your OS sound settings before starting capture\n\n")

	return nil
}
