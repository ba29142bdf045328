package ratbag

// Transport is the HID feature-report channel a driver talks through. It is
// implemented by the hidsvc backends; drivers never open devices themselves.
type Transport interface {
	// GetFeatureReport reads a feature report. The returned slice starts
	// with the report ID byte and its length is whatever the device
	// produced, which may be shorter than size.
	GetFeatureReport(reportID uint8, size int) ([]byte, error)
	// SetFeatureReport writes a feature report. data[0] is the report ID.
	// It returns the number of bytes accepted by the device.
	SetFeatureReport(data []byte) (int, error)
	GetReportDescriptor() ([]byte, error)
	Close() error
}

// Device is one probed physical device together with its decoded profiles.
// A Device is owned by a single caller for the duration of an operation;
// serializing access to the underlying hardware is the caller's job.
type Device struct {
	Name     string     `json:"name"`
	DriverID string     `json:"driver"`
	Profiles []*Profile `json:"profiles"`

	Transport Transport `json:"-"`

	// DriverData carries driver-private state between Probe and Commit,
	// such as the last configuration read from the device.
	DriverData any `json:"-"`
}

// ActiveProfile returns the active profile, or nil when none is marked active.
func (d *Device) ActiveProfile() *Profile {
	for _, p := range d.Profiles {
		if p.Active {
			return p
		}
	}
	return nil
}
