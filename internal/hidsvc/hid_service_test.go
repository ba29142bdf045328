package hidsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enkore/libratbag/pkg/ratbag"
)

// staticBackend announces a fixed device set during startup, the way the
// linux backend announces its initial enumeration.
type staticBackend struct {
	ready   chan struct{}
	devices []BackendDevice
}

func (b *staticBackend) Start(ctx context.Context, pub BackendPublisher) error {
	pub(ctx, BackendEvent{
		DevicesChanged: &BackendEventDevicesChanged{Connected: b.devices},
	})
	close(b.ready)
	<-ctx.Done()
	return nil
}

func (b *staticBackend) Ready() <-chan struct{} {
	return b.ready
}

func (b *staticBackend) OpenDevice(id string) (ratbag.Transport, error) {
	return nil, errors.New("not implemented")
}

func newTestService(t *testing.T, backend Backend) *Service {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, zap.NewNop(), time.Now, WithBackend("test", backend))
}

func TestStartupAnnouncementsTracked(t *testing.T) {
	backend := &staticBackend{
		ready: make(chan struct{}),
		devices: []BackendDevice{
			{ID: "258a:0036:1", Name: "Test Mouse", VendorID: 0x258a, ProductID: 0x0036},
		},
	}
	svc := newTestService(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()

	select {
	case <-svc.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("service did not become ready")
	}

	// a device announced during backend startup is tracked even with no
	// event subscriber attached
	addr := Address{Backend: "test", ID: "258a:0036:1"}
	require.Eventually(t, func() bool {
		return svc.IsConnected(addr)
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []Address{addr}, svc.ConnectedDevices())

	dev, err := svc.GetDevice(addr)
	require.NoError(t, err)
	assert.Equal(t, "Test Mouse", dev.Name)
	assert.Equal(t, uint16(0x258a), dev.BackendDevice.VendorID)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestSubscribeBeforeStartReceivesStartupEvents(t *testing.T) {
	backend := &staticBackend{
		ready: make(chan struct{}),
		devices: []BackendDevice{
			{ID: "258a:0036:1", Name: "Test Mouse", VendorID: 0x258a, ProductID: 0x0036},
		},
	}
	svc := newTestService(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// subscribing ahead of Start mirrors the daemon's hotplug watcher
	events := svc.SubscribeDeviceEvents()(ctx)
	go svc.Start(ctx)

	select {
	case msg := <-events:
		assert.Equal(t, DeviceConnected, msg.Key.Type)
		assert.Equal(t, Address{Backend: "test", ID: "258a:0036:1"}, msg.Key.Addr)
	case <-time.After(5 * time.Second):
		t.Fatal("startup device event was not delivered")
	}
}
