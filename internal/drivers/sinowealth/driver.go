package sinowealth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/enkore/libratbag/pkg/ratbag"
)

// DriverID is the identifier device database entries use.
const DriverID = "sinowealth"

// reportRate is the only rate the protocol knows; there is no negotiation.
const reportRate = 1000

type Driver struct {
	log *zap.Logger
}

func New(log *zap.Logger) ratbag.Driver {
	return &Driver{log: log}
}

// driverData caches the configuration last read from the device so a commit
// can start from it and keep the opaque regions intact.
type driverData struct {
	config atomic.Pointer[configReport]
}

// ErrUnsupportedDevice is returned when the report descriptor shows the
// device does not carry the configuration report.
var ErrUnsupportedDevice = errors.New("device has no configuration report")

// Probe checks the report descriptor for the configuration report, then reads
// the device configuration and builds the single profile this protocol has.
// A transport failure or short response means the device does not speak this
// protocol.
func (d *Driver) Probe(ctx context.Context, dev *ratbag.Device) error {
	desc, err := dev.Transport.GetReportDescriptor()
	if err != nil {
		return fmt.Errorf("failed to read report descriptor: %w", err)
	}
	if !hasReportID(desc, reportIDConfig) {
		return ErrUnsupportedDevice
	}

	data := &driverData{}
	dev.DriverData = data

	profile := ratbag.NewProfile(0, numDPIs, numDPIs+1)
	dev.Profiles = []*ratbag.Profile{profile}

	if err := d.readProfile(dev, data, profile); err != nil {
		dev.DriverData = nil
		dev.Profiles = nil
		return fmt.Errorf("failed to read profile: %w", err)
	}
	return nil
}

func (d *Driver) readConfig(dev *ratbag.Device) (*configReport, error) {
	cmd := []byte{byte(reportIDCmd), cmdGetConfig, 0, 0, 0, 0}
	n, err := dev.Transport.SetFeatureReport(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to send read config command: %w", err)
	}
	if n != len(cmd) {
		return nil, fmt.Errorf("short write sending read config command: %d bytes", n)
	}

	// The GET_FEATURE report length has to be 520, but the actual data
	// returned may be less.
	buf, err := dev.Transport.GetFeatureReport(reportIDConfig, configBufferSize)
	if err != nil {
		return nil, fmt.Errorf("could not read device configuration: %w", err)
	}
	return decodeConfigReport(buf)
}

func (d *Driver) readProfile(dev *ratbag.Device, data *driverData, profile *ratbag.Profile) error {
	config, err := d.readConfig(dev)
	if err != nil {
		return err
	}

	profile.ReportRate = reportRate
	profile.ReportRates = []int{reportRate}
	profile.LiftOffDistance = liftOffDistanceMM(config.liftOffDistance)

	dpis := dpiList()
	for _, res := range profile.Resolutions {
		res.DPIX, res.DPIY = config.decodeDPISlot(res.Index)
		// active_dpi is 1-based on the wire
		res.Active = res.Index == int(config.activeDPI)-1
		res.Default = res.Active
		res.DPIList = dpis
		res.CapSeparateXY = true
	}

	// Body lighting
	led := profile.Leds[0]
	led.Type = ratbag.LedTypeBody
	led.ColorDepth = ratbag.ColorDepthRGB888
	led.SetModeCapability(ratbag.LedOff)
	led.SetModeCapability(ratbag.LedOn)
	led.SetModeCapability(ratbag.LedCycle)
	led.SetModeCapability(ratbag.LedBreathing)
	if err := decodeBodyLed(config, led); err != nil {
		// recoverable: the mode stays unset and the read continues
		d.log.Warn("unknown lighting effect", zap.Error(err))
	}

	// DPI indicator LEDs
	for i := 1; i < numDPIs+1; i++ {
		led := profile.Leds[i]
		led.Type = ratbag.LedTypeDPI
		led.ColorDepth = ratbag.ColorDepthRGB888
		led.Mode = ratbag.LedOn
		led.Color = rawToColor(config.dpiColor[i-1])
		led.SetModeCapability(ratbag.LedOn)
	}

	profile.Active = true

	data.config.Store(config)
	return nil
}

// Commit derives a new configuration report from the profile model and
// writes it as one atomic block. On any failure the device state must be
// treated as unknown; there is no partial application and no retry.
func (d *Driver) Commit(ctx context.Context, dev *ratbag.Device) error {
	data, ok := dev.DriverData.(*driverData)
	if !ok || data.config.Load() == nil {
		return fmt.Errorf("device has not been probed")
	}
	profile := dev.Profiles[0]

	// Start from the last-known report to keep the opaque regions.
	config := *data.config.Load()

	config.encodeDPISlots(profile.Resolutions)
	if active := profile.ActiveResolution(); active != nil {
		config.activeDPI = uint8(active.Index) + 1
	}

	encodeBodyLed(&config, profile.Leds[0])
	for i := 1; i < numDPIs+1; i++ {
		config.dpiColor[i-1] = colorToRaw(profile.Leds[i].Color)
	}

	config.configWrite = configWriteMagic

	buf := config.encode()
	n, err := dev.Transport.SetFeatureReport(buf)
	if err != nil {
		return fmt.Errorf("error while writing config: %w", err)
	}
	if n != configBufferSize {
		return fmt.Errorf("short write while writing config: %d of %d bytes", n, configBufferSize)
	}

	data.config.Store(&config)
	return nil
}

func (d *Driver) Remove(dev *ratbag.Device) {
	dev.DriverData = nil
}

// FirmwareVersion issues the firmware version command and returns the
// version bytes as reported by the device.
func (d *Driver) FirmwareVersion(dev *ratbag.Device) (string, error) {
	cmd := []byte{byte(reportIDCmd), cmdFirmwareVersion, 0, 0, 0, 0}
	n, err := dev.Transport.SetFeatureReport(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to send firmware version command: %w", err)
	}
	if n != len(cmd) {
		return "", fmt.Errorf("short write sending firmware version command: %d bytes", n)
	}
	buf, err := dev.Transport.GetFeatureReport(reportIDCmd, 6)
	if err != nil {
		return "", fmt.Errorf("could not read firmware version: %w", err)
	}
	if len(buf) < 6 {
		return "", fmt.Errorf("%w: firmware version response", ErrMalformedReport)
	}
	return string(buf[2:6]), nil
}

// hasReportID walks a HID report descriptor looking for a Report ID item
// with the given value. Long items are skipped over.
func hasReportID(desc []byte, id byte) bool {
	for i := 0; i < len(desc); {
		prefix := desc[i]
		if prefix == 0xfe {
			// long item: prefix, size, tag, data
			if i+1 >= len(desc) {
				return false
			}
			i += 3 + int(desc[i+1])
			continue
		}
		size := int(prefix & 0x03)
		if size == 3 {
			size = 4
		}
		// Report ID is the global item with tag 8
		if prefix&0xfc == 0x84 && size >= 1 && i+1 < len(desc) && desc[i+1] == id {
			return true
		}
		i += 1 + size
	}
	return false
}

// liftOffDistanceMM decodes the lift-off distance byte (0x1 = 2 mm,
// 0x2 = 3 mm). Unknown values map to 0.
func liftOffDistanceMM(raw byte) int {
	switch raw {
	case 0x1:
		return 2
	case 0x2:
		return 3
	}
	return 0
}
