package cmd

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGMSL/internal/logging"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	profileName string
	transport   string

	log = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "gmsl",
	Short: "GMSL2 quad deserializer control tool",
	Long: `Bring up, inspect and exercise MAX96724/MAX96712 quad GMSL2 deserializers
over i2c-dev, SMBus or an i2c-tiny-usb bridge, or against the built-in simulator.

Examples:
  gmsl interfaces                                   # List I2C transports
  gmsl probe --config boards/ --profile quad-cphy   # Identify the chip
  gmsl simulate --sources 4 --rounds 10             # Exercise the control flow
  gmsl script init.regs                             # Replay a register script`,
	Version: "0.9.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(os.Stderr, verbose)
	},
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"board profile file or directory of profiles (default: built-in simulator profile)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "",
		"profile to use when --config is a directory")
	rootCmd.PersistentFlags().StringVarP(&transport, "transport", "t", "",
		"override the profile transport (periph, smbus, usb, sim)")
}
