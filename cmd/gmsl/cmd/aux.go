package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var auxCmd = &cobra.Command{
	Use:   "aux <pin> <high|low>",
	Short: "Drive a multi-function pin",
	Long: `Configure one of the MFP pins 0..10 as a push-pull output and drive it.

Examples:
  gmsl aux 7 high     # release a sensor reset wired to MFP7
  gmsl aux 7 low`,
	Args: cobra.ExactArgs(2),
	RunE: runAux,
}

func init() {
	rootCmd.AddCommand(auxCmd)
}

func runAux(cmd *cobra.Command, args []string) error {
	pin, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid pin %q: %w", args[0], err)
	}
	var high bool
	switch strings.ToLower(args[1]) {
	case "high", "1", "on":
		high = true
	case "low", "0", "off":
	default:
		return fmt.Errorf("invalid level %q (want high or low)", args[1])
	}

	b, err := openBoard(nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.dev.SetAuxiliaryIO(pin, high); err != nil {
		return fmt.Errorf("set MFP%d failed: %w", pin, err)
	}
	fmt.Printf("MFP%d driven %s\n", pin, strings.ToLower(args[1]))
	return nil
}
