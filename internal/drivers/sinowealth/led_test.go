package sinowealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enkore/libratbag/pkg/ratbag"
)

func TestDecodeBodyLed(t *testing.T) {
	tests := []struct {
		name      string
		effect    byte
		wantMode  ratbag.LedMode
		wantColor ratbag.Color
	}{
		{name: "off", effect: effectOff, wantMode: ratbag.LedOff},
		{name: "single", effect: effectSingle, wantMode: ratbag.LedOn, wantColor: ratbag.Color{Red: 0xff, Green: 0x00, Blue: 0x80}},
		{name: "glorious", effect: effectGlorious, wantMode: ratbag.LedCycle},
		{name: "breathing", effect: effectBreathing, wantMode: ratbag.LedCycle},
		{name: "breathing7", effect: effectBreathing7, wantMode: ratbag.LedCycle},
		{name: "tail", effect: effectTail, wantMode: ratbag.LedCycle},
		{name: "rave", effect: effectRave, wantMode: ratbag.LedCycle},
		{name: "wave", effect: effectWave, wantMode: ratbag.LedCycle},
		{name: "breathing1", effect: effectBreathing1, wantMode: ratbag.LedBreathing, wantColor: ratbag.Color{Red: 0x10, Green: 0x20, Blue: 0x30}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := &configReport{
				effect:          test.effect,
				singleColor:     rgb{0xff, 0x00, 0x80},
				breathing1Color: rgb{0x10, 0x20, 0x30},
			}
			led := &ratbag.Led{}
			require.NoError(t, decodeBodyLed(config, led))
			assert.Equal(t, test.wantMode, led.Mode)
			assert.Equal(t, test.wantColor, led.Color)
		})
	}
}

func TestDecodeBodyLedUnknownEffect(t *testing.T) {
	config := &configReport{effect: 0x6}
	led := &ratbag.Led{}
	err := decodeBodyLed(config, led)
	require.ErrorIs(t, err, ErrUnknownEffect)
	assert.Equal(t, ratbag.LedModeUnset, led.Mode)
}

// The cycle mode collapses the whole effect family onto the plain glorious
// effect on write. A wave effect read from the device therefore comes back
// as glorious after a commit; this loss is protocol behavior, not a bug.
func TestEncodeBodyLedCycleCollapse(t *testing.T) {
	config := &configReport{effect: effectWave}
	led := &ratbag.Led{}
	require.NoError(t, decodeBodyLed(config, led))
	require.Equal(t, ratbag.LedCycle, led.Mode)

	encodeBodyLed(config, led)
	assert.Equal(t, effectGlorious, config.effect)
}

func TestEncodeBodyLed(t *testing.T) {
	tests := []struct {
		name       string
		mode       ratbag.LedMode
		color      ratbag.Color
		wantEffect byte
	}{
		{name: "off", mode: ratbag.LedOff, wantEffect: effectOff},
		{name: "on", mode: ratbag.LedOn, color: ratbag.Color{Red: 1, Green: 2, Blue: 3}, wantEffect: effectSingle},
		{name: "cycle", mode: ratbag.LedCycle, wantEffect: effectGlorious},
		{name: "breathing", mode: ratbag.LedBreathing, color: ratbag.Color{Red: 4, Green: 5, Blue: 6}, wantEffect: effectBreathing1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := &configReport{}
			encodeBodyLed(config, &ratbag.Led{Mode: test.mode, Color: test.color})
			assert.Equal(t, test.wantEffect, config.effect)
			switch test.mode {
			case ratbag.LedOn:
				assert.Equal(t, colorToRaw(test.color), config.singleColor)
			case ratbag.LedBreathing:
				assert.Equal(t, colorToRaw(test.color), config.breathing1Color)
			}
		})
	}
}
