// Package ratbag holds the device-agnostic configuration model shared by all
// drivers: profiles, resolutions and LEDs, plus the driver registry.
package ratbag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Color is an RGB color with 8 bits per channel.
type Color struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
}

func (c Color) Hex() string {
	return fmt.Sprintf("%02x%02x%02x", c.Red, c.Green, c.Blue)
}

// ParseColor parses an RRGGBB hex string, with an optional leading '#'.
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid color: %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color: %q", s)
	}
	return Color{
		Red:   uint8(v >> 16),
		Green: uint8(v >> 8),
		Blue:  uint8(v),
	}, nil
}

type LedMode uint8

const (
	LedModeUnset LedMode = iota
	LedOff
	LedOn
	LedCycle
	LedBreathing
)

var ledModeNames = map[LedMode]string{
	LedModeUnset: "unset",
	LedOff:       "off",
	LedOn:        "on",
	LedCycle:     "cycle",
	LedBreathing: "breathing",
}

func (m LedMode) String() string {
	name, ok := ledModeNames[m]
	if !ok {
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
	return name
}

func (m LedMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// ParseLedMode parses one of "off", "on", "cycle" or "breathing".
func ParseLedMode(s string) (LedMode, error) {
	for mode, name := range ledModeNames {
		if name == s && mode != LedModeUnset {
			return mode, nil
		}
	}
	return LedModeUnset, fmt.Errorf("invalid LED mode: %q", s)
}

type LedType uint8

const (
	LedTypeBody LedType = iota
	LedTypeDPI
)

func (t LedType) String() string {
	switch t {
	case LedTypeBody:
		return "body"
	case LedTypeDPI:
		return "dpi"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

func (t LedType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

type ColorDepth uint8

const (
	ColorDepthMonochrome ColorDepth = iota
	ColorDepthRGB888
)

// Led is one configurable light on the device.
type Led struct {
	Index      int        `json:"index"`
	Type       LedType    `json:"type"`
	Mode       LedMode    `json:"mode"`
	Color      Color      `json:"color"`
	ColorDepth ColorDepth `json:"-"`

	SupportedModes []LedMode `json:"supportedModes"`
}

// SetModeCapability declares a mode as settable on this LED.
func (l *Led) SetModeCapability(mode LedMode) {
	for _, m := range l.SupportedModes {
		if m == mode {
			return
		}
	}
	l.SupportedModes = append(l.SupportedModes, mode)
}

func (l *Led) Supports(mode LedMode) bool {
	for _, m := range l.SupportedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Resolution is one DPI slot. A DPI of 0 on both axes marks the slot disabled.
type Resolution struct {
	Index   int  `json:"index"`
	DPIX    int  `json:"dpiX"`
	DPIY    int  `json:"dpiY"`
	Active  bool `json:"active"`
	Default bool `json:"default"`

	// CapSeparateXY is set when the device can configure the axes
	// independently.
	CapSeparateXY bool  `json:"capSeparateXY"`
	DPIList       []int `json:"dpiList,omitempty"`
}

// Disabled reports whether the slot is turned off.
func (r *Resolution) Disabled() bool {
	return r.DPIX == 0 || r.DPIY == 0
}

// Profile is one on-device configuration set.
type Profile struct {
	Index       int   `json:"index"`
	Active      bool  `json:"active"`
	ReportRate  int   `json:"reportRate"`
	ReportRates []int `json:"reportRates,omitempty"`

	// LiftOffDistance is the sensor lift-off distance in millimeters,
	// read-only and 0 when the device does not report it.
	LiftOffDistance int `json:"liftOffDistance,omitempty"`

	Resolutions []*Resolution `json:"resolutions"`
	Leds        []*Led        `json:"leds"`
}

// NewProfile allocates a profile with the given number of resolution slots
// and LEDs, all zero-valued.
func NewProfile(index, numResolutions, numLeds int) *Profile {
	p := &Profile{
		Index:       index,
		Resolutions: make([]*Resolution, numResolutions),
		Leds:        make([]*Led, numLeds),
	}
	for i := range p.Resolutions {
		p.Resolutions[i] = &Resolution{Index: i}
	}
	for i := range p.Leds {
		p.Leds[i] = &Led{Index: i}
	}
	return p
}

// ActiveResolution returns the active slot, or nil when none is marked active.
func (p *Profile) ActiveResolution() *Resolution {
	for _, res := range p.Resolutions {
		if res.Active {
			return res
		}
	}
	return nil
}
