package ratbagd

type Config struct {
	// DataDir holds the badger store with device metadata.
	DataDir string
	// DevicedbDir is an optional directory of extra device database
	// entries layered over the embedded set.
	DevicedbDir string
}

// Settings is the optional settings.yaml in the data directory. The file is
// watched; changes are logged but take effect on the next start, because the
// values configure service construction.
type Settings struct {
	// HotplugPollSeconds is the interval of the poll fallback supplementing
	// udev hotplug events. 0 keeps the backend default.
	HotplugPollSeconds int `json:"hotplugPollSeconds"`
	// BackendRestartSeconds is the backoff before a crashed HID backend is
	// restarted. 0 keeps the service default.
	BackendRestartSeconds int `json:"backendRestartSeconds"`
}
