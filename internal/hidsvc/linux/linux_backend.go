// Package linux implements the hidsvc.Backend interface on top of hidapi
// and udev.
package linux

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jochenvg/go-udev"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/enkore/libratbag/internal/hidsvc"
	"github.com/enkore/libratbag/pkg/ratbag"
)

var defaultBackendOptions = backendOptions{
	pollInterval: 2 * time.Second,
}

type backendOptions struct {
	pollInterval time.Duration
}

func WithPollInterval(d time.Duration) Option {
	return func(o *backendOptions) {
		o.pollInterval = d
	}
}

type Option func(*backendOptions)

// Backend enumerates HID devices with hidapi and reacts to hidraw hotplug
// events from udev. Periodic polling remains as a fallback because netlink
// events can be lost.
type Backend struct {
	log     *zap.Logger
	options backendOptions

	hidDevices *xsync.MapOf[HidAddress, hid.DeviceInfo]

	udev  *udev.Udev
	ready chan struct{}

	publisher hidsvc.BackendPublisher
}

type HidAddress struct {
	VendorID  uint16
	ProductID uint16
	Interface int
}

func (a HidAddress) String() string {
	return fmt.Sprintf("%04x:%04x:%d", a.VendorID, a.ProductID, a.Interface)
}

func ParseHidAddress(s string) (HidAddress, error) {
	var addr HidAddress
	_, err := fmt.Sscanf(s, "%04x:%04x:%d", &addr.VendorID, &addr.ProductID, &addr.Interface)
	if err != nil {
		return HidAddress{}, fmt.Errorf("invalid HID address %q: %w", s, err)
	}
	return addr, nil
}

func NewBackend(log *zap.Logger, opts ...Option) *Backend {
	options := defaultBackendOptions
	for _, opt := range opts {
		opt(&options)
	}

	return &Backend{
		options:    options,
		log:        log,
		ready:      make(chan struct{}),
		hidDevices: xsync.NewMapOf[HidAddress, hid.DeviceInfo](),
	}
}

func (b *Backend) Ready() <-chan struct{} {
	return b.ready
}

func (b *Backend) Start(ctx context.Context, publisher hidsvc.BackendPublisher) error {
	hid.Init()
	b.udev = &udev.Udev{}
	b.publisher = publisher

	b.log.Info("Starting Linux HID backend")

	err := b.refreshHidDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh HID devices: %w", err)
	}

	hotplug, err := b.hotplugChan(ctx)
	if err != nil {
		b.log.Warn("udev monitor unavailable, falling back to polling only", zap.Error(err))
	}

	close(b.ready)
	b.log.Info("Linux HID backend started")

	pollTicker := time.NewTicker(b.options.pollInterval)
	defer pollTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hotplug:
			if err := b.refreshHidDevices(ctx); err != nil {
				b.log.Error("failed to refresh HID devices", zap.Error(err))
			}
		case <-pollTicker.C:
			if err := b.refreshHidDevices(ctx); err != nil {
				b.log.Error("failed to refresh HID devices", zap.Error(err))
			}
		}
	}
}

// hotplugChan subscribes to hidraw add/remove events over netlink.
func (b *Backend) hotplugChan(ctx context.Context) (<-chan *udev.Device, error) {
	monitor := b.udev.NewMonitorFromNetlink("udev")
	if monitor == nil {
		return nil, fmt.Errorf("failed to create udev monitor")
	}
	err := monitor.FilterAddMatchSubsystem("hidraw")
	if err != nil {
		return nil, fmt.Errorf("failed to filter udev monitor: %w", err)
	}
	ch, err := monitor.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to udev events: %w", err)
	}
	return ch, nil
}

func (b *Backend) refreshHidDevices(ctx context.Context) error {
	newDevices, err := b.enumerateHidDevices()
	if err != nil {
		return err
	}
	var disconnected []string
	var connected []hidsvc.BackendDevice
	b.hidDevices.Range(func(addr HidAddress, dev hid.DeviceInfo) bool {
		if _, ok := newDevices[addr]; !ok {
			disconnected = append(disconnected, addr.String())
			b.hidDevices.Delete(addr)
			return true
		}
		delete(newDevices, addr)
		return true
	})

	for addr, device := range newDevices {
		b.hidDevices.Store(addr, device)
		connected = append(connected, hidsvc.BackendDevice{
			ID:        addr.String(),
			Name:      generateName(device),
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
		})
	}

	if len(connected) > 0 || len(disconnected) > 0 {
		b.publisher(ctx, hidsvc.BackendEvent{
			DevicesChanged: &hidsvc.BackendEventDevicesChanged{
				Connected:    connected,
				Disconnected: disconnected,
			},
		})
	}

	return nil
}

func generateName(device hid.DeviceInfo) string {
	var parts []string
	if device.MfrStr != "" {
		parts = append(parts, device.MfrStr)
	}
	if device.ProductStr != "" {
		parts = append(parts, device.ProductStr)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%04x:%04x", device.VendorID, device.ProductID)
	}
	return strings.Join(parts, " ")
}

func (b *Backend) enumerateHidDevices() (map[HidAddress]hid.DeviceInfo, error) {
	devices := make(map[HidAddress]hid.DeviceInfo)
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(device *hid.DeviceInfo) error {
		addr := HidAddress{
			VendorID:  device.VendorID,
			ProductID: device.ProductID,
			Interface: device.InterfaceNbr,
		}
		devices[addr] = *device
		return nil
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (b *Backend) OpenDevice(id string) (ratbag.Transport, error) {
	addr, err := ParseHidAddress(id)
	if err != nil {
		return nil, err
	}

	info, ok := b.hidDevices.Load(addr)
	if !ok {
		return nil, fmt.Errorf("device not found: %s", id)
	}
	dev, err := hid.OpenPath(info.Path)
	if err != nil {
		return nil, err
	}

	return &hidapiDevice{
		log:  b.log,
		info: info,
		dev:  dev,
	}, nil
}

type hidapiDevice struct {
	log  *zap.Logger
	info hid.DeviceInfo
	dev  *hid.Device
}

func (h *hidapiDevice) GetFeatureReport(reportID uint8, size int) ([]byte, error) {
	buf := make([]byte, size)
	buf[0] = reportID
	n, err := h.dev.GetFeatureReport(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (h *hidapiDevice) SetFeatureReport(data []byte) (int, error) {
	return h.dev.SendFeatureReport(data)
}

func (h *hidapiDevice) GetReportDescriptor() ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := h.dev.GetReportDescriptor(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (h *hidapiDevice) Close() error {
	return h.dev.Close()
}
