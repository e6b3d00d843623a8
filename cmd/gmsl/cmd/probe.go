package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Identify the deserializer",
	Long: `Read the device ID and revision registers and report the chip family.

Examples:
  gmsl probe
  gmsl probe --config boards/ --profile quad-cphy`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	b, err := openBoard(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	info, err := b.dev.Identify()
	if err != nil {
		return fmt.Errorf("identify failed: %w", err)
	}

	fmt.Printf("Device ID: 0x%02X\n", info.DeviceID)
	fmt.Printf("Revision:  %d\n", info.Revision)
	fmt.Printf("Chip:      %s\n", info.Variant)
	fmt.Printf("CSI:       %s %s, up to %d source(s)\n", b.cfg.CSIMode, b.dev.Config().PHY, b.cfg.MaxSources)
	return nil
}
