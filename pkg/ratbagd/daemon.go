// Package ratbagd wires the configuration daemon together: HID transport,
// device database, driver registry and the services around them.
package ratbagd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/enkore/libratbag/internal/configsvc"
	"github.com/enkore/libratbag/internal/devicedb"
	"github.com/enkore/libratbag/internal/drivers"
	"github.com/enkore/libratbag/internal/hidsvc"
	"github.com/enkore/libratbag/internal/hidsvc/linux"
	"github.com/enkore/libratbag/pkg/ratbag"
)

type Daemon struct {
	config Config
	log    *zap.Logger

	db        *badger.DB
	registry  *ratbag.Registry
	configSvc *configsvc.Service
	hidSvc    *hidsvc.Service
	deviceDB  *devicedb.DB
}

func New(config Config) (*Daemon, error) {
	container := dig.New()
	providers := []any{
		func() Config { return config },
		newLogger,
		openDB,
		func(log *zap.Logger) (*configsvc.Service, error) {
			return configsvc.New(log.Named("config"))
		},
		loadSettings,
		func(cfg Config, log *zap.Logger) *devicedb.DB {
			return devicedb.New(log.Named("devicedb"), cfg.DevicedbDir)
		},
		func() *ratbag.Registry {
			registry := ratbag.NewRegistry()
			drivers.Register(registry)
			return registry
		},
		func(db *badger.DB, settings Settings, log *zap.Logger) *hidsvc.Service {
			var backendOpts []linux.Option
			if settings.HotplugPollSeconds > 0 {
				backendOpts = append(backendOpts, linux.WithPollInterval(time.Duration(settings.HotplugPollSeconds)*time.Second))
			}
			backend := linux.NewBackend(log.Named("hid.linux"), backendOpts...)
			opts := []hidsvc.Option{hidsvc.WithBackend("linux", backend)}
			if settings.BackendRestartSeconds > 0 {
				opts = append(opts, hidsvc.WithBackoffTimeout(time.Duration(settings.BackendRestartSeconds)*time.Second))
			}
			return hidsvc.New(db, log.Named("hid"), time.Now, opts...)
		},
	}
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return nil, fmt.Errorf("failed to build daemon: %w", err)
		}
	}

	var daemon *Daemon
	err := container.Invoke(func(
		cfg Config,
		log *zap.Logger,
		db *badger.DB,
		registry *ratbag.Registry,
		configSvc *configsvc.Service,
		deviceDB *devicedb.DB,
		hidSvc *hidsvc.Service,
	) {
		daemon = &Daemon{
			config:    cfg,
			log:       log,
			db:        db,
			registry:  registry,
			configSvc: configSvc,
			hidSvc:    hidSvc,
			deviceDB:  deviceDB,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build daemon: %w", err)
	}
	return daemon, nil
}

func newLogger() (*zap.Logger, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// loadSettings reads settings.yaml from the data directory and keeps watching
// it. The values configure service construction, so a change only takes
// effect on the next start. Depends on the badger store so the data directory
// exists before the watch is added.
func loadSettings(cfg Config, configSvc *configsvc.Service, _ *badger.DB, log *zap.Logger) (Settings, error) {
	path := filepath.Join(cfg.DataDir, "settings.yaml")
	settings, err := configsvc.Register(configSvc, path, Settings{}, func(s Settings, err error) {
		if err != nil {
			log.Error("failed to reload settings", zap.Error(err))
			return
		}
		log.Info("settings changed, restart to apply", zap.String("path", path))
	})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func openDB(cfg Config, log *zap.Logger) (*badger.DB, error) {
	options := badger.DefaultOptions(filepath.Join(cfg.DataDir, "db"))
	options.Logger = &badgerLogger{l: log.Named("badger")}
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return db, nil
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the daemon and blocks until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.hidSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return d.watchDevices(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("daemon failed: %w", err)
	}
	return nil
}

// WaitReady blocks until all services finished starting.
func (d *Daemon) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.configSvc.Ready():
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.hidSvc.Ready():
	}
	return nil
}

func (d *Daemon) watchDevices(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-d.configSvc.Ready():
	}

	if err := d.deviceDB.Load(); err != nil {
		return err
	}
	if d.config.DevicedbDir != "" {
		err := d.configSvc.WatchDir(d.config.DevicedbDir, func(fsnotify.Event) {
			if err := d.deviceDB.Load(); err != nil {
				d.log.Error("failed to reload device database", zap.Error(err))
			}
		})
		if err != nil {
			d.log.Warn("not watching device database dir", zap.Error(err))
		}
	}

	// The subscription has to exist before the HID service announces its
	// initial enumeration; events with no receiver are dropped.
	events := d.hidSvc.SubscribeDeviceEvents()(ctx)

	select {
	case <-ctx.Done():
		return nil
	case <-d.hidSvc.Ready():
	}

	// Devices announced before the subscription took effect are picked up
	// here; a device announced in between is probed twice, which only
	// costs a duplicate log line.
	for _, addr := range d.hidSvc.ConnectedDevices() {
		d.onDeviceConnected(ctx, addr)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-events:
			if !ok {
				return nil
			}
			if msg.Key.Type != hidsvc.DeviceConnected {
				continue
			}
			d.onDeviceConnected(ctx, msg.Key.Addr)
		}
	}
}

func (d *Daemon) onDeviceConnected(ctx context.Context, addr hidsvc.Address) {
	dev, _, closeDev, err := d.OpenDevice(ctx, addr.String())
	if errors.Is(err, ErrNoDriver) {
		return
	}
	if err != nil {
		d.log.Error("failed to probe device", zap.String("addr", addr.String()), zap.Error(err))
		return
	}
	defer closeDev()

	profile := dev.ActiveProfile()
	if profile == nil {
		d.log.Info("probed device", zap.String("addr", addr.String()), zap.String("name", dev.Name))
		return
	}
	fields := []zap.Field{
		zap.String("addr", addr.String()),
		zap.String("name", dev.Name),
		zap.Int("reportRate", profile.ReportRate),
	}
	if res := profile.ActiveResolution(); res != nil {
		fields = append(fields, zap.Int("dpiX", res.DPIX), zap.Int("dpiY", res.DPIY))
	}
	if len(profile.Leds) > 0 {
		fields = append(fields, zap.Stringer("ledMode", profile.Leds[0].Mode))
	}
	d.log.Info("probed device", fields...)
}

var ErrNoDriver = errors.New("no driver for device")

// OpenDevice resolves a device address to a driver through the device
// database, opens its transport and probes it. The returned cleanup releases
// driver state and closes the transport.
func (d *Daemon) OpenDevice(ctx context.Context, addrStr string) (*ratbag.Device, ratbag.Driver, func(), error) {
	addr, err := hidsvc.ParseAddress(addrStr)
	if err != nil {
		return nil, nil, nil, err
	}
	bdev, ok := d.hidSvc.ConnectedDevice(addr)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", hidsvc.ErrDeviceNotConnected, addrStr)
	}
	entry, ok := d.deviceDB.Match(bdev.VendorID, bdev.ProductID)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %04x:%04x", ErrNoDriver, bdev.VendorID, bdev.ProductID)
	}
	driver, err := d.registry.New(entry.Driver, d.log)
	if err != nil {
		return nil, nil, nil, err
	}
	transport, err := d.hidSvc.OpenDevice(addr)
	if err != nil {
		return nil, nil, nil, err
	}
	dev := &ratbag.Device{
		Name:      entry.Name,
		DriverID:  entry.Driver,
		Transport: transport,
	}
	if err := driver.Probe(ctx, dev); err != nil {
		transport.Close()
		return nil, nil, nil, fmt.Errorf("probe failed: %w", err)
	}
	closeDev := func() {
		driver.Remove(dev)
		transport.Close()
	}
	return dev, driver, closeDev, nil
}

func (d *Daemon) HID() *hidsvc.Service {
	return d.hidSvc
}

func (d *Daemon) DeviceDB() *devicedb.DB {
	return d.deviceDB
}

func (d *Daemon) Close() error {
	return d.db.Close()
}
