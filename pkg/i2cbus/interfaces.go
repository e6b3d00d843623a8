package i2cbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// InterfaceKind categorizes transport families.
type InterfaceKind string

const (
	InterfaceKindTinyUSB InterfaceKind = "usb"
	InterfaceKindPeriph  InterfaceKind = "periph"
	InterfaceKindSim     InterfaceKind = "sim"
)

// InterfaceInfo describes a detected transport.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	// Bus is the periph bus name for i2c-dev adapters.
	Bus    string
	Number int
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind == InterfaceKindPeriph {
		return fmt.Sprintf("I2C bus %s", i.Bus)
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces enumerates USB I2C bridges with known VID/PID pairs and
// the host I2C buses. It always returns at least the simulator entry so the
// tools can be exercised without hardware connected.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	var errs error

	usb := gousb.NewContext()
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := classifyUSBDevice(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, info)
		}
		return false
	})
	usb.Close()
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		errs = multierr.Append(errs, err)
	}

	if err := HostInit(); err != nil {
		errs = multierr.Append(errs, err)
	} else {
		for _, ref := range i2creg.All() {
			results = append(results, InterfaceInfo{
				Kind:   InterfaceKindPeriph,
				Bus:    ref.Name,
				Number: ref.Number,
			})
		}
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindSim,
		Description: "Simulator (no hardware)",
	})

	return results, errs
}

func classifyUSBDevice(vid, pid uint16) (InterfaceInfo, bool) {
	for _, known := range knownTinyUSBVIDPIDs {
		if vid == known.VendorID && pid == known.ProductID {
			return InterfaceInfo{
				Kind:        InterfaceKindTinyUSB,
				Description: known.Description,
				VendorID:    known.VendorID,
				ProductID:   known.ProductID,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

type knownUSBDevice struct {
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownTinyUSBVIDPIDs = []knownUSBDevice{
	{VendorID: VendorIDTinyUSB, ProductID: ProductIDTinyUSB, Description: "i2c-tiny-usb"},
}
