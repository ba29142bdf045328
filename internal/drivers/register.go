// Package drivers wires every protocol implementation into a driver
// registry.
package drivers

import (
	"github.com/enkore/libratbag/internal/drivers/sinowealth"
	"github.com/enkore/libratbag/pkg/ratbag"
)

func Register(registry *ratbag.Registry) {
	registry.MustRegister(sinowealth.DriverID, sinowealth.New)
}
