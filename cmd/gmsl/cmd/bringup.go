package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
)

var (
	powerOff bool
	oneShot  bool
)

var bringupCmd = &cobra.Command{
	Use:   "bringup",
	Short: "Power the deserializer and apply the initial settings",
	Long: `Sequence the reset and power lines of the profile, then write the initial register
settings: regulator and PoC on MAX96712, a reset of all four links, and every pipe mapped
to the virtual channel of the same index.

Examples:
  gmsl bringup
  gmsl bringup --config boards/quad-cphy.yaml --oneshot`,
	RunE: runBringup,
}

func init() {
	rootCmd.AddCommand(bringupCmd)

	bringupCmd.Flags().BoolVar(&powerOff, "power-off", false,
		"drop the power reference again when done")
	bringupCmd.Flags().BoolVar(&oneShot, "oneshot", false,
		"pulse the one-shot link reset after the settings")
}

func runBringup(cmd *cobra.Command, args []string) error {
	b, err := openBoard(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.dev.PowerOn(); err != nil {
		return fmt.Errorf("power on failed: %w", err)
	}
	fmt.Println("Powered on")

	if err := b.dev.InitSettings(); err != nil {
		reportSteps("init settings", err)
		return fmt.Errorf("init settings failed: %w", err)
	}
	snap := b.dev.Snapshot()
	fmt.Printf("Initial settings applied (%s, %s %s)\n", snap.Variant, b.cfg.CSIMode, b.dev.Config().PHY)

	if oneShot {
		if err := b.dev.ResetOneShot(); err != nil {
			return fmt.Errorf("one-shot reset failed: %w", err)
		}
		fmt.Printf("One-shot reset pulsed on %s\n", snap.SrcLink)
	}

	if powerOff {
		if err := b.dev.PowerOff(); err != nil {
			return fmt.Errorf("power off failed: %w", err)
		}
		fmt.Println("Powered off")
	}
	return nil
}

// reportSteps prints every failed step of a register sequence.
func reportSteps(what string, err error) {
	errs := multierr.Errors(err)
	fmt.Printf("%s: %d step(s) failed\n", what, len(errs))
	for _, e := range errs {
		fmt.Printf("  - %v\n", e)
	}
}

func printSnapshot(snap max96724.Snapshot) {
	fmt.Printf("Chip:             %s\n", snap.Variant)
	fmt.Printf("Link setup:       %t\n", snap.LinkSetupDone)
	fmt.Printf("Sources:          %d registered, %d found, %d attached\n",
		len(snap.Sources), snap.SourcesFound, snap.AttachedRefCount)
	fmt.Printf("Splitter:         %t\n", snap.SplitterEnabled)
	fmt.Printf("Source link:      %s -> %s x%d\n", snap.SrcLink, snap.DstCSIPort, snap.LaneCount)
	for _, src := range snap.Sources {
		fmt.Printf("  %s -> %s x%d streaming=%t\n", src.Link, src.DstCSIPort, src.NumCSILanes, src.StreamingEnabled)
	}
	for _, p := range snap.Pipes {
		fmt.Printf("Pipe %d:           %-8s ctrl=%d refs=%d\n", p.ID, p.DataType, p.DstCSIController, p.RefCount)
	}
}
