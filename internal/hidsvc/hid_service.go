// Package hidsvc tracks HID devices exposed by platform backends and hands
// out feature-report transports for them. It remembers every device it has
// seen in a local store so the CLI can refer to devices that are currently
// unplugged.
package hidsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/enkore/libratbag/pkg/bus"
	"github.com/enkore/libratbag/pkg/ratbag"
)

type Service struct {
	log        *zap.Logger
	db         *badger.DB
	options    serviceOptions
	now        func() time.Time
	ready      chan struct{}
	backendBus *BackendBus

	deviceBus        *DeviceBus
	connectedDevices *xsync.MapOf[Address, BackendDevice]
}

type (
	BackendBus       = bus.Bus[string, BackendEvent]
	BackendPublisher = bus.Publisher[BackendEvent]

	DeviceEventType uint8
	DeviceBusKey    struct {
		Type DeviceEventType
		Addr Address
	}
	DeviceBus        = bus.Bus[DeviceBusKey, DeviceEvent]
	DeviceSubscriber = bus.Subscriber[DeviceBusKey, DeviceEvent]
	DeviceEvent      struct{}
)

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

var defaultOptions = serviceOptions{
	backends:       make(map[string]Backend),
	backoffTimeout: 5 * time.Second,
}

type serviceOptions struct {
	backends       map[string]Backend
	backoffTimeout time.Duration
}

type Option func(*serviceOptions)

func WithBackend(name string, backend Backend) Option {
	return func(o *serviceOptions) {
		o.backends[name] = backend
	}
}

func WithBackoffTimeout(d time.Duration) Option {
	return func(o *serviceOptions) {
		o.backoffTimeout = d
	}
}

func New(db *badger.DB, log *zap.Logger, now func() time.Time, opts ...Option) *Service {
	options := defaultOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		db:         db,
		log:        log,
		options:    options,
		now:        now,
		ready:      make(chan struct{}),
		backendBus: bus.NewBus[string, BackendEvent](log),

		deviceBus:        bus.NewBus[DeviceBusKey, DeviceEvent](log),
		connectedDevices: xsync.NewMapOf[Address, BackendDevice](),
	}
}

func (s *Service) Start(ctx context.Context) error {
	err := s.backendBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start backend bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.backendBus.Ready():
	}

	err = s.deviceBus.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start device bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.deviceBus.Ready():
	}

	// The subscription must exist before any backend starts publishing;
	// the bus drops messages that have no receiver.
	backendEvents := s.backendBus.Subscribe(ctx)
	go s.consumeEvents(ctx, backendEvents)

	for backendID := range s.options.backends {
		go s.runBackend(ctx, backendID)
	}
	for _, backend := range s.options.backends {
		select {
		case <-ctx.Done():
			return nil
		case <-backend.Ready():
		}
	}
	close(s.ready)
	s.log.Info("HID service started")
	<-ctx.Done()
	return nil
}

func (s *Service) consumeEvents(ctx context.Context, ch <-chan bus.Message[string, BackendEvent]) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleBackendEvent(ctx, msg.Key, msg.Message)
		}
	}
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) handleBackendEvent(ctx context.Context, backendID string, event BackendEvent) {
	if event.DevicesChanged == nil {
		return
	}
	s.log.Debug("devices changed", zap.String("backend", backendID))
	for _, id := range event.DevicesChanged.Disconnected {
		s.onDeviceDisconnected(ctx, backendID, id)
	}
	for _, dev := range event.DevicesChanged.Connected {
		s.onDeviceConnected(ctx, backendID, dev)
	}
}

// HidDevice is the persisted record of a device the service has seen.
type HidDevice struct {
	Address       Address       `json:"address"`
	BackendDevice BackendDevice `json:"backendDevice"`
	Name          string        `json:"name"`
	FirstSeenAt   time.Time     `json:"firstSeenAt"`
	LastSeenAt    time.Time     `json:"lastSeenAt"`
}

func (s *Service) onDeviceDisconnected(ctx context.Context, backendID, id string) {
	addr := Address{Backend: backendID, ID: id}
	s.connectedDevices.Delete(addr)
	s.log.Debug("device disconnected", zap.String("backend", backendID), zap.String("id", id))
	s.deviceBus.Publish(ctx, DeviceBusKey{
		Type: DeviceDisconnected,
		Addr: addr,
	}, DeviceEvent{})
}

func (s *Service) onDeviceConnected(ctx context.Context, backendID string, bdev BackendDevice) {
	dev, err := s.initializeDevice(backendID, bdev)
	if err != nil {
		s.log.Error("failed to initialize device", zap.Error(err))
		return
	}
	s.log.Debug("device connected", zap.String("backend", backendID), zap.String("id", dev.Address.ID), zap.String("name", dev.Name), zap.Time("firstSeenAt", dev.FirstSeenAt))
	s.connectedDevices.Store(dev.Address, bdev)
	s.deviceBus.Publish(ctx, DeviceBusKey{
		Type: DeviceConnected,
		Addr: dev.Address,
	}, DeviceEvent{})
}

var ErrDeviceNotFound = errors.New("device not found")

func (s *Service) deviceKey(address Address) []byte {
	return []byte(fmt.Sprintf("hid/devices/%s/%s", address.Backend, address.ID))
}

func (s *Service) initializeDevice(backendID string, bdev BackendDevice) (HidDevice, error) {
	var dev HidDevice
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		addr := Address{Backend: backendID, ID: bdev.ID}
		key := s.deviceKey(addr)
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			dev = HidDevice{
				Name: bdev.Name,
			}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal device: %w", err)
			}
		}
		dev.Address = addr
		dev.BackendDevice = bdev
		dev.Name = bdev.Name
		if dev.FirstSeenAt.IsZero() {
			dev.FirstSeenAt = now
		}
		dev.LastSeenAt = now
		b, err := json.Marshal(dev)
		if err != nil {
			return fmt.Errorf("failed to marshal device: %w", err)
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return HidDevice{}, fmt.Errorf("failed to persist device: %w", err)
	}
	return dev, nil
}

func (s *Service) runBackend(ctx context.Context, backendID string) {
	backend := s.options.backends[backendID]
	for {
		err := backend.Start(ctx, s.backendBus.CreatePublisher(backendID))
		if err != nil {
			s.log.Error("failed to start the backend", zap.String("backend", backendID), zap.Error(err))
		}
		t := time.NewTimer(s.options.backoffTimeout)
		// retry after backoff
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return
		case <-t.C:
		}
	}
}

type BackendEvent struct {
	DevicesChanged *BackendEventDevicesChanged
}

type BackendEventDevicesChanged struct {
	Connected    []BackendDevice
	Disconnected []string
}

// BackendDevice is the backend's view of one connected device.
type BackendDevice struct {
	ID        string
	Name      string
	VendorID  uint16
	ProductID uint16
}

type Backend interface {
	Start(ctx context.Context, pub BackendPublisher) error
	Ready() <-chan struct{}
	OpenDevice(id string) (ratbag.Transport, error)
}

type Address struct {
	Backend string `yaml:"backend" json:"backend"`
	ID      string `yaml:"id" json:"id"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", a.Backend, a.ID)
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var addr struct {
		Backend string `json:"backend"`
		ID      string `json:"id"`
	}
	err := json.Unmarshal(data, &addr)
	if err == nil {
		*a = Address{Backend: addr.Backend, ID: addr.ID}
		return nil
	}
	var s string
	err = json.Unmarshal(data, &s)
	if err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAddress(s string) (Address, error) {
	var addr Address
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("invalid address: %s", s)
	}
	addr.Backend = parts[0]
	addr.ID = strings.ReplaceAll(parts[1], ".", ":")
	return addr, nil
}

// ListDevices returns every device ever seen, connected or not.
func (s *Service) ListDevices() ([]HidDevice, error) {
	var devices []HidDevice
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte("hid/devices/")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			item := iter.Item()
			var dev HidDevice
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &dev)
			})
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *Service) GetDevice(addr Address) (HidDevice, error) {
	var dev HidDevice
	err := s.db.View(func(txn *badger.Txn) error {
		key := s.deviceKey(addr)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrDeviceNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &dev)
		})
	})
	if err != nil {
		return HidDevice{}, fmt.Errorf("failed to get device: %w", err)
	}
	return dev, nil
}

var ErrDeviceNotConnected = errors.New("device not connected")

// OpenDevice opens a feature-report transport to a connected device.
func (s *Service) OpenDevice(addr Address) (ratbag.Transport, error) {
	backend, ok := s.options.backends[addr.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", addr.Backend)
	}
	if !s.IsConnected(addr) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotConnected, addr)
	}
	dev, err := backend.OpenDevice(addr.ID)
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (s *Service) IsConnected(addr Address) bool {
	_, ok := s.connectedDevices.Load(addr)
	return ok
}

// ConnectedDevice returns the live backend record for a connected device.
func (s *Service) ConnectedDevice(addr Address) (BackendDevice, bool) {
	return s.connectedDevices.Load(addr)
}

// ConnectedDevices returns the addresses of every currently connected device.
func (s *Service) ConnectedDevices() []Address {
	var addrs []Address
	s.connectedDevices.Range(func(addr Address, _ BackendDevice) bool {
		addrs = append(addrs, addr)
		return true
	})
	return addrs
}

// SubscribeDeviceEvents returns a subscriber for connect/disconnect events
// across all devices.
func (s *Service) SubscribeDeviceEvents() DeviceSubscriber {
	return s.deviceBus.CreateSubscriber()
}
