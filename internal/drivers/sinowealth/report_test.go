package sinowealth

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeConfigReportTooShort(t *testing.T) {
	for _, size := range []int{0, 1, 6, configReportSize - 1} {
		_, err := decodeConfigReport(make([]byte, size))
		if !errors.Is(err, ErrMalformedReport) {
			t.Errorf("size %d: expected ErrMalformedReport, got %v", size, err)
		}
	}
}

func TestDecodeConfigReportNibbles(t *testing.T) {
	buf := make([]byte, configReportSize)
	buf[offDPISlots] = 0x16 // active_dpi=1 in the high nibble, dpi_count=6 in the low

	config, err := decodeConfigReport(buf)
	if err != nil {
		t.Fatal(err)
	}
	if config.dpiCount != 6 {
		t.Errorf("dpiCount = %d, want 6", config.dpiCount)
	}
	if config.activeDPI != 1 {
		t.Errorf("activeDPI = %d, want 1", config.activeDPI)
	}

	buf2 := config.encode()
	if buf2[offDPISlots] != 0x16 {
		t.Errorf("packed slot byte = %#02x, want 0x16", buf2[offDPISlots])
	}
}

func testReport() *configReport {
	c := &configReport{
		reportID:    reportIDConfig,
		configWrite: configWriteMagic,
		config:      flagXYIndependent,
		dpiCount:    6,
		activeDPI:   2,
		dpiDisabled: 0xc0,

		effect: effectWave,

		gloriousMode:      0x42,
		gloriousDirection: 0x01,
		singleColor:       rgb{0xff, 0x00, 0x80},

		breathingMode:       0x41,
		breathingColorCount: 7,

		tailMode: 0x23,
		raveMode: 0x12,
		waveMode: 0x31,

		breathing1Mode:  0x02,
		breathing1Color: rgb{0x10, 0x20, 0x30},

		unknown4:        0x05,
		liftOffDistance: 0x02,
	}
	c.unknown2 = [6]byte{1, 2, 3, 4, 5, 6}
	for i := range c.dpi {
		c.dpi[i] = byte(i + 3)
	}
	for i := range c.dpiColor {
		c.dpiColor[i] = rgb{byte(i), byte(i * 2), byte(i * 3)}
	}
	for i := range c.breathingColors {
		c.breathingColors[i] = rgb{byte(0x70 + i), 0x00, byte(0x10 * i)}
	}
	c.raveColors = [2]rgb{{1, 2, 3}, {4, 5, 6}}
	for i := range c.padding {
		c.padding[i] = byte(i * 7)
	}
	return c
}

func TestConfigReportRoundTrip(t *testing.T) {
	original := testReport()

	buf := original.encode()
	if len(buf) != configBufferSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), configBufferSize)
	}
	if buf[offConfigWrite] != configWriteMagic {
		t.Fatalf("write magic = %#02x, want %#02x", buf[offConfigWrite], configWriteMagic)
	}

	decoded, err := decodeConfigReport(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\noriginal: %+v\ndecoded:  %+v", original, decoded)
	}
}

func TestEncodePreservesPadding(t *testing.T) {
	buf := make([]byte, configBufferSize)
	for i := configReportSize; i < configBufferSize; i++ {
		buf[i] = 0xa5
	}
	config, err := decodeConfigReport(buf)
	if err != nil {
		t.Fatal(err)
	}
	out := config.encode()
	for i := configReportSize; i < configBufferSize; i++ {
		if out[i] != 0xa5 {
			t.Fatalf("padding byte %d = %#02x, want 0xa5", i, out[i])
		}
	}
}

func TestDecodeStructuredPortionOnly(t *testing.T) {
	// A device may deliver less than the full transport buffer; the
	// structured portion alone has to decode, with zero padding.
	buf := make([]byte, configReportSize)
	buf[offEffect] = effectSingle
	config, err := decodeConfigReport(buf)
	if err != nil {
		t.Fatal(err)
	}
	if config.effect != effectSingle {
		t.Errorf("effect = %#02x, want %#02x", config.effect, effectSingle)
	}
}
