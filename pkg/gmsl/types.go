// Package gmsl holds the vocabulary shared between camera source drivers and
// a GMSL2 deserializer: link identifiers, CSI-2 ports and data types, and the
// link descriptor a source hands over when it registers.
package gmsl

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LinkID identifies one of the four serial links of a quad deserializer.
type LinkID uint8

const (
	LinkA LinkID = iota
	LinkB
	LinkC
	LinkD
	LinkUnknown LinkID = 0xFF
)

// Links lists the valid links in port order.
var Links = []LinkID{LinkA, LinkB, LinkC, LinkD}

// Valid reports whether the link is one of A..D.
func (l LinkID) Valid() bool {
	return l <= LinkD
}

// Port returns the zero based link index used by the register map. Unknown
// links fall back to port 0.
func (l LinkID) Port() uint8 {
	if !l.Valid() {
		return 0
	}
	return uint8(l)
}

func (l LinkID) String() string {
	if !l.Valid() {
		return "GMSL UNKNOWN"
	}
	return fmt.Sprintf("GMSL %c", 'A'+rune(l))
}

// ParseLink accepts "A".."D" (case insensitive, optional "GMSL " prefix).
func ParseLink(s string) (LinkID, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimPrefix(s, "GMSL ")
	s = strings.TrimPrefix(s, "LINK")
	s = strings.TrimSpace(s)
	if len(s) == 1 && s[0] >= 'A' && s[0] <= 'D' {
		return LinkID(s[0] - 'A'), nil
	}
	return LinkUnknown, fmt.Errorf("gmsl: invalid link %q", s)
}

// CSIPort identifies a CSI-2 output port of the deserializer.
type CSIPort uint8

const (
	CSIPortA CSIPort = iota
	CSIPortB
	CSIPortC
	CSIPortD
)

// Valid reports whether the port is one of A..D.
func (p CSIPort) Valid() bool {
	return p <= CSIPortD
}

func (p CSIPort) String() string {
	if !p.Valid() {
		return fmt.Sprintf("CSI ?(%d)", uint8(p))
	}
	return fmt.Sprintf("CSI %c", 'A'+rune(p))
}

// ParseCSIPort accepts "A".."D" or "0".."3".
func ParseCSIPort(s string) (CSIPort, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if len(s) == 1 {
		switch {
		case s[0] >= 'A' && s[0] <= 'D':
			return CSIPort(s[0] - 'A'), nil
		case s[0] >= '0' && s[0] <= '3':
			return CSIPort(s[0] - '0'), nil
		}
	}
	return 0, fmt.Errorf("gmsl: invalid csi port %q", s)
}

// DataType is a CSI-2 data type code.
type DataType uint8

const (
	DataTypeFrameStart DataType = 0x00
	DataTypeFrameEnd   DataType = 0x01
	DataTypeEmbedded   DataType = 0x12
	DataTypeYUV422_8   DataType = 0x1E
	DataTypeRGB888     DataType = 0x24
	DataTypeRAW8       DataType = 0x2A
	DataTypeRAW10      DataType = 0x2B
	DataTypeRAW12      DataType = 0x2C
)

var dataTypeNames = map[DataType]string{
	DataTypeFrameStart: "FS",
	DataTypeFrameEnd:   "FE",
	DataTypeEmbedded:   "EMBED",
	DataTypeYUV422_8:   "YUV422_8",
	DataTypeRGB888:     "RGB888",
	DataTypeRAW8:       "RAW8",
	DataTypeRAW10:      "RAW10",
	DataTypeRAW12:      "RAW12",
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DT(0x%02X)", uint8(d))
}

// ParseDataType accepts a data type name or a numeric code such as 0x2C.
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	for dt, name := range dataTypeNames {
		if strings.EqualFold(name, s) {
			return dt, nil
		}
	}
	var code uint
	if _, err := fmt.Sscanf(s, "0x%x", &code); err == nil && code <= 0x3F {
		return DataType(code), nil
	}
	return 0, fmt.Errorf("gmsl: unknown data type %q", s)
}

// CSIMode is the lane grouping of the CSI-2 output PHYs.
type CSIMode uint8

const (
	CSIMode2x4 CSIMode = iota
	CSIMode1x4
	CSIMode4x2
)

func (m CSIMode) String() string {
	switch m {
	case CSIMode1x4:
		return "1x4"
	case CSIMode2x4:
		return "2x4"
	case CSIMode4x2:
		return "4x2"
	default:
		return fmt.Sprintf("CSIMode(%d)", uint8(m))
	}
}

// ParseCSIMode accepts "1x4", "2x4" or "4x2".
func ParseCSIMode(s string) (CSIMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1x4":
		return CSIMode1x4, nil
	case "2x4", "":
		return CSIMode2x4, nil
	case "4x2":
		return CSIMode4x2, nil
	}
	return 0, fmt.Errorf("gmsl: unknown csi mode %q", s)
}

// PHYType is the electrical signaling of the CSI-2 output.
type PHYType uint8

const (
	PHYTypeDPHY PHYType = iota
	PHYTypeCPHY
)

func (p PHYType) String() string {
	if p == PHYTypeCPHY {
		return "CPHY"
	}
	return "DPHY"
}

// ParsePHYType accepts "dphy" or "cphy".
func ParsePHYType(s string) (PHYType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dphy", "d-phy":
		return PHYTypeDPHY, nil
	case "cphy", "c-phy", "":
		return PHYTypeCPHY, nil
	}
	return 0, fmt.Errorf("gmsl: unknown phy type %q", s)
}

// LinkContext is the descriptor a camera source hands to the deserializer when
// it registers. Owner identifies the source in every later call.
type LinkContext struct {
	Owner           uuid.UUID
	Link            LinkID
	DstCSIPort      CSIPort
	NumCSILanes     uint8
	CSIMode         CSIMode
	SerializerFound bool
}

// NewLinkContext returns a descriptor with a fresh owner identity and the
// serializer marked as found.
func NewLinkContext(link LinkID, port CSIPort, lanes uint8) LinkContext {
	return LinkContext{
		Owner:           uuid.New(),
		Link:            link,
		DstCSIPort:      port,
		NumCSILanes:     lanes,
		CSIMode:         CSIMode2x4,
		SerializerFound: true,
	}
}
