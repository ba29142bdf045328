package ratbag

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Driver is the capability interface a protocol implementation provides.
//
// Probe reads the full device state into dev.Profiles. Commit writes the
// current profile model back to the device as one atomic report; when it
// fails the device state must be treated as unknown. Remove releases
// driver-private state; it does not close the transport.
type Driver interface {
	Probe(ctx context.Context, dev *Device) error
	Commit(ctx context.Context, dev *Device) error
	Remove(dev *Device)
}

// DriverConstructor builds a driver instance with its own named logger.
type DriverConstructor func(log *zap.Logger) Driver

// Registry maps driver IDs to constructors. Drivers register themselves
// during process startup and lookups happen when a device database entry
// names a driver.
type Registry struct {
	drivers map[string]DriverConstructor
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]DriverConstructor),
	}
}

// MustRegister panics when the ID is already taken.
func (r *Registry) MustRegister(id string, constructor DriverConstructor) {
	if _, ok := r.drivers[id]; ok {
		panic(fmt.Sprintf("driver already registered: %s", id))
	}
	r.drivers[id] = constructor
}

func (r *Registry) New(id string, log *zap.Logger) (Driver, error) {
	constructor, ok := r.drivers[id]
	if !ok {
		return nil, fmt.Errorf("driver not found: %s", id)
	}
	return constructor(log.Named(id)), nil
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.drivers))
	for id := range r.drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
