package sinowealth

import (
	"errors"
	"fmt"

	"github.com/enkore/libratbag/pkg/ratbag"
)

// Lighting effects of the body LED.
const (
	effectOff        byte = 0x0
	effectGlorious   byte = 0x1 // unicorn mode
	effectSingle     byte = 0x2 // single constant color
	effectBreathing7 byte = 0x3 // breathing with seven colors
	effectTail       byte = 0x4
	effectBreathing  byte = 0x5 // RGB breathing
	effectRave       byte = 0x7
	effectWave       byte = 0x9
	effectBreathing1 byte = 0xa // single color breathing
)

// ErrUnknownEffect is returned for effect codes outside the known table.
// The caller leaves the LED mode unset instead of failing the whole read.
var ErrUnknownEffect = errors.New("unknown lighting effect")

// decodeBodyLed maps the device effect onto the generic LED modes. The whole
// cycle family (glorious, breathing, breathing7, tail, rave, wave) collapses
// onto a single generic mode; their per-effect color and speed settings have
// no generic representation.
func decodeBodyLed(c *configReport, led *ratbag.Led) error {
	switch c.effect {
	case effectOff:
		led.Mode = ratbag.LedOff
	case effectSingle:
		led.Mode = ratbag.LedOn
		led.Color = rawToColor(c.singleColor)
	case effectGlorious, effectBreathing, effectBreathing7, effectTail, effectRave, effectWave:
		led.Mode = ratbag.LedCycle
	case effectBreathing1:
		led.Mode = ratbag.LedBreathing
		led.Color = rawToColor(c.breathing1Color)
	default:
		return fmt.Errorf("%w: %#02x", ErrUnknownEffect, c.effect)
	}
	return nil
}

// encodeBodyLed writes the generic LED mode back as an effect. This write is
// destructive: the cycle mode always becomes the plain glorious effect, so
// committing after reading, say, a wave effect silently replaces it and its
// parameters with the glorious defaults.
func encodeBodyLed(c *configReport, led *ratbag.Led) {
	switch led.Mode {
	case ratbag.LedOff:
		c.effect = effectOff
	case ratbag.LedOn:
		c.effect = effectSingle
		c.singleColor = colorToRaw(led.Color)
	case ratbag.LedCycle:
		c.effect = effectGlorious
	case ratbag.LedBreathing:
		c.effect = effectBreathing1
		c.breathing1Color = colorToRaw(led.Color)
	}
}
