package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/i2cbus"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available I2C interfaces",
	Long: `Scan the host for I2C transports (i2c-tiny-usb bridges and i2c-dev buses) and print a
summary of the detected interfaces. Use this to verify connectivity or pick the bus for a
board profile before launching other commands.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := i2cbus.DiscoverInterfaces(ctx)
	if err != nil {
		// Discovery errors are not fatal; whatever was found is listed.
		log.Info("interface discovery incomplete", "error", err.Error())
	}

	if len(infos) == 0 {
		fmt.Println("No interfaces found.")
		return nil
	}

	fmt.Println("Detected I2C interfaces:")
	for _, iface := range infos {
		switch iface.Kind {
		case i2cbus.InterfaceKindPeriph:
			fmt.Printf("  - %s [%s] (bus %d)\n", iface.Label(), iface.Kind, iface.Number)
		case i2cbus.InterfaceKindTinyUSB:
			fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
		default:
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
		}
	}

	return nil
}
