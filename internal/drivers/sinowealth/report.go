// Package sinowealth implements the configuration protocol of
// Sinowealth-based gaming mice (Glorious Model O/O-/D and friends).
//
// The whole device configuration is a single feature report: a read is
// triggered with a command report on ID 0x05 and fetched as a 520-byte
// feature report with ID 0x04; a write sends the full 520-byte buffer back
// with a magic byte set. Only the first 97 bytes are structured, the rest is
// opaque padding which this driver preserves across read-modify-write
// cycles.
package sinowealth

import (
	"errors"
	"fmt"

	"github.com/enkore/libratbag/pkg/ratbag"
)

const (
	reportIDConfig uint8 = 0x04
	reportIDCmd    uint8 = 0x05

	cmdFirmwareVersion byte = 0x01
	cmdGetConfig       byte = 0x11

	// configBufferSize is the full transport buffer. The device reports
	// less actual data but the GET/SET feature report length has to be
	// 520.
	configBufferSize = 520

	// configWriteMagic has to be present at offConfigWrite when writing
	// the configuration back; the device delivers the field as zero.
	configWriteMagic byte = 0x7b

	// flagXYIndependent in the config byte switches every DPI slot from
	// one shared raw byte to separate X and Y bytes.
	flagXYIndependent byte = 0x80
)

// Field offsets of the structured part of the configuration report. The
// on-wire layout is fixed by the firmware; offsets are spelled out instead
// of relying on Go struct layout.
const (
	offReportID            = 0
	offCommandID           = 1
	offUnknown1            = 2
	offConfigWrite         = 3
	offUnknown2            = 4 // 6 bytes
	offConfig              = 10
	offDPISlots            = 11 // dpi_count low nibble, active_dpi high nibble
	offDPIDisabled         = 12
	offDPI                 = 13 // 16 bytes
	offDPIColor            = 29 // 8 RGB triplets
	offEffect              = 53
	offGloriousMode        = 54
	offGloriousDirection   = 55
	offSingleColor         = 56 // RGB triplet
	offBreathingMode       = 59
	offBreathingColorCount = 60
	offBreathingColors     = 61 // 7 RGB triplets
	offTailMode            = 82
	offRaveMode            = 83
	offRaveColors          = 84 // 2 RGB triplets
	offWaveMode            = 90
	offBreathing1Mode      = 91
	offBreathing1Color     = 92 // RGB triplet
	offUnknown4            = 95
	offLiftOffDistance     = 96

	// configReportSize is the size of the structured portion. A shorter
	// feature report is a malformed response.
	configReportSize = 97
)

// ErrMalformedReport is returned when the device hands back fewer bytes
// than the structured portion of the configuration report.
var ErrMalformedReport = errors.New("malformed configuration report")

type rgb struct {
	R, G, B uint8
}

func rawToColor(raw rgb) ratbag.Color {
	return ratbag.Color{Red: raw.R, Green: raw.G, Blue: raw.B}
}

func colorToRaw(color ratbag.Color) rgb {
	return rgb{R: color.Red, G: color.Green, B: color.Blue}
}

// configReport is the decoded device configuration. Values kept here use
// wire semantics: activeDPI is 1-based, dpiDisabled is an inverted bitmask
// (a set bit disables the slot), dpi holds raw sensor bytes.
type configReport struct {
	reportID    byte
	commandID   byte
	unknown1    byte
	configWrite byte
	unknown2    [6]byte

	config      byte
	dpiCount    uint8 // 4-bit
	activeDPI   uint8 // 4-bit, 1-based
	dpiDisabled byte
	dpi         [16]byte
	dpiColor    [8]rgb

	effect byte

	gloriousMode      byte
	gloriousDirection byte

	singleColor rgb

	breathingMode       byte
	breathingColorCount byte
	breathingColors     [7]rgb

	tailMode byte

	raveMode   byte
	raveColors [2]rgb

	waveMode byte

	breathing1Mode  byte
	breathing1Color rgb

	unknown4        byte
	liftOffDistance byte

	// padding preserves the unstructured remainder of the 520-byte
	// transport buffer so a commit writes back whatever the device
	// delivered there.
	padding [configBufferSize - configReportSize]byte
}

func (c *configReport) xyIndependent() bool {
	return c.config&flagXYIndependent != 0
}

func (c *configReport) setXYIndependent(independent bool) {
	if independent {
		c.config |= flagXYIndependent
	} else {
		c.config &^= flagXYIndependent
	}
}

func getRGB(buf []byte, off int) rgb {
	return rgb{R: buf[off], G: buf[off+1], B: buf[off+2]}
}

func putRGB(buf []byte, off int, c rgb) {
	buf[off] = c.R
	buf[off+1] = c.G
	buf[off+2] = c.B
}

// decodeConfigReport unpacks a feature report buffer. buf must contain at
// least the structured portion; trailing bytes up to the transport size are
// kept opaquely.
func decodeConfigReport(buf []byte) (*configReport, error) {
	if len(buf) < configReportSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformedReport, len(buf), configReportSize)
	}
	c := &configReport{
		reportID:    buf[offReportID],
		commandID:   buf[offCommandID],
		unknown1:    buf[offUnknown1],
		configWrite: buf[offConfigWrite],

		config:      buf[offConfig],
		dpiCount:    buf[offDPISlots] & 0x0f,
		activeDPI:   buf[offDPISlots] >> 4,
		dpiDisabled: buf[offDPIDisabled],

		effect: buf[offEffect],

		gloriousMode:      buf[offGloriousMode],
		gloriousDirection: buf[offGloriousDirection],
		singleColor:       getRGB(buf, offSingleColor),

		breathingMode:       buf[offBreathingMode],
		breathingColorCount: buf[offBreathingColorCount],

		tailMode: buf[offTailMode],
		raveMode: buf[offRaveMode],
		waveMode: buf[offWaveMode],

		breathing1Mode:  buf[offBreathing1Mode],
		breathing1Color: getRGB(buf, offBreathing1Color),

		unknown4:        buf[offUnknown4],
		liftOffDistance: buf[offLiftOffDistance],
	}
	copy(c.unknown2[:], buf[offUnknown2:offUnknown2+len(c.unknown2)])
	copy(c.dpi[:], buf[offDPI:offDPI+len(c.dpi)])
	for i := range c.dpiColor {
		c.dpiColor[i] = getRGB(buf, offDPIColor+3*i)
	}
	for i := range c.breathingColors {
		c.breathingColors[i] = getRGB(buf, offBreathingColors+3*i)
	}
	for i := range c.raveColors {
		c.raveColors[i] = getRGB(buf, offRaveColors+3*i)
	}
	if len(buf) > configReportSize {
		copy(c.padding[:], buf[configReportSize:])
	}
	return c, nil
}

// encode packs the report into a full transport buffer. The write magic is
// always set; bytes without structured fields carry the preserved padding,
// zero where none was ever read.
func (c *configReport) encode() []byte {
	buf := make([]byte, configBufferSize)

	buf[offReportID] = c.reportID
	buf[offCommandID] = c.commandID
	buf[offUnknown1] = c.unknown1
	buf[offConfigWrite] = configWriteMagic
	copy(buf[offUnknown2:], c.unknown2[:])

	buf[offConfig] = c.config
	buf[offDPISlots] = c.dpiCount&0x0f | c.activeDPI<<4
	buf[offDPIDisabled] = c.dpiDisabled
	copy(buf[offDPI:], c.dpi[:])
	for i, color := range c.dpiColor {
		putRGB(buf, offDPIColor+3*i, color)
	}

	buf[offEffect] = c.effect

	buf[offGloriousMode] = c.gloriousMode
	buf[offGloriousDirection] = c.gloriousDirection
	putRGB(buf, offSingleColor, c.singleColor)

	buf[offBreathingMode] = c.breathingMode
	buf[offBreathingColorCount] = c.breathingColorCount
	for i, color := range c.breathingColors {
		putRGB(buf, offBreathingColors+3*i, color)
	}

	buf[offTailMode] = c.tailMode
	buf[offRaveMode] = c.raveMode
	for i, color := range c.raveColors {
		putRGB(buf, offRaveColors+3*i, color)
	}
	buf[offWaveMode] = c.waveMode

	buf[offBreathing1Mode] = c.breathing1Mode
	putRGB(buf, offBreathing1Color, c.breathing1Color)

	buf[offUnknown4] = c.unknown4
	buf[offLiftOffDistance] = c.liftOffDistance

	copy(buf[configReportSize:], c.padding[:])
	return buf
}
