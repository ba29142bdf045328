// Package ratbagcli is the command line interface of ratbagd.
package ratbagcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/enkore/libratbag/internal/devicedb"
	"github.com/enkore/libratbag/internal/hidsvc"
	"github.com/enkore/libratbag/pkg/ratbag"
	"github.com/enkore/libratbag/pkg/ratbagd"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "ratbagd"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type daemonProvider func() *ratbagd.Daemon

func NewRootCmd(configDir string) *cobra.Command {
	cfg := ratbagd.Config{
		DataDir:     filepath.Join(configDir, "data"),
		DevicedbDir: filepath.Join(configDir, "devices"),
	}
	rootCmd := &cobra.Command{
		Use:   "ratbagd",
		Short: "Configure gaming mice",
		Long:  `ratbagd reads and writes the on-device configuration of supported gaming mice: DPI slots, lighting and active profile.`,
	}
	var d *ratbagd.Daemon
	daemon := func() *ratbagd.Daemon {
		return d
	}
	rootCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.DevicedbDir, "devicedb-dir", cfg.DevicedbDir, "extra device database directory")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		d, err = ratbagd.New(cfg)
		return err
	}
	rootCmd.AddCommand(NewRun(daemon))
	rootCmd.AddCommand(NewListDevices(daemon))
	rootCmd.AddCommand(NewShow(daemon))
	rootCmd.AddCommand(NewSetDPI(daemon))
	rootCmd.AddCommand(NewSetActiveDPI(daemon))
	rootCmd.AddCommand(NewSetLed(daemon))
	return rootCmd
}

func NewRun(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Long:  `Watch for supported devices and log their configuration as they appear.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return daemon().Run(cmd.Context())
		},
	}
}

// withDaemon runs the daemon in the background for the duration of a
// one-shot command. Device enumeration only happens in a running daemon.
func withDaemon(ctx context.Context, d *ratbagd.Daemon, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.Run(groupCtx)
	})
	err := d.WaitReady(groupCtx)
	if err == nil {
		err = fn(groupCtx)
	}
	cancel()
	if werr := group.Wait(); werr != nil && err == nil {
		err = werr
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	jsonB, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
	return nil
}

// deviceStatus is one row of list-devices output.
type deviceStatus struct {
	hidsvc.HidDevice
	Connected bool   `json:"connected"`
	Driver    string `json:"driver,omitempty"`
	Entry     string `json:"entry,omitempty"`
	Alias     string `json:"alias,omitempty"`
}

func newDeviceStatus(dev hidsvc.HidDevice, connected bool, entry devicedb.Entry, matched bool) deviceStatus {
	status := deviceStatus{
		HidDevice: dev,
		Connected: connected,
	}
	if matched {
		status.Driver = entry.Driver
		status.Entry = entry.ID
		status.Alias = entry.Alias
	}
	return status
}

func NewListDevices(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List HID devices",
		Long:  `List HID devices, including previously seen ones that are currently unplugged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), daemon(), func(ctx context.Context) error {
				devices, err := daemon().HID().ListDevices()
				if err != nil {
					return err
				}
				result := make([]deviceStatus, 0, len(devices))
				for _, dev := range devices {
					entry, ok := daemon().DeviceDB().Match(dev.BackendDevice.VendorID, dev.BackendDevice.ProductID)
					result = append(result, newDeviceStatus(dev, daemon().HID().IsConnected(dev.Address), entry, ok))
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func NewShow(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "show <addr>",
		Short: "Show device configuration",
		Long:  `Read the on-device configuration and print it as JSON.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), daemon(), func(ctx context.Context) error {
				dev, _, closeDev, err := daemon().OpenDevice(ctx, args[0])
				if err != nil {
					return err
				}
				defer closeDev()
				return printJSON(cmd, dev)
			})
		},
	}
}

// parseDPI accepts "800" (both axes), "400x800" (separate axes) and "0"
// (slot disabled).
func parseDPI(s string) (dpiX, dpiY int, err error) {
	if x, y, ok := strings.Cut(s, "x"); ok {
		dpiX, err = strconv.Atoi(x)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid DPI: %q", s)
		}
		dpiY, err = strconv.Atoi(y)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid DPI: %q", s)
		}
		return dpiX, dpiY, nil
	}
	dpiX, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid DPI: %q", s)
	}
	return dpiX, dpiX, nil
}

func resolutionArg(profile *ratbag.Profile, arg string) (*ratbag.Resolution, error) {
	slot, err := strconv.Atoi(arg)
	if err != nil || slot < 0 || slot >= len(profile.Resolutions) {
		return nil, fmt.Errorf("invalid resolution slot: %q", arg)
	}
	return profile.Resolutions[slot], nil
}

func NewSetDPI(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "set-dpi <addr> <slot> <dpi>",
		Short: "Set the DPI of a resolution slot",
		Long:  `Set the DPI of one slot and commit. DPI is either a single value for both axes, "<x>x<y>" for separate axes, or 0 to disable the slot.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), daemon(), func(ctx context.Context) error {
				dpiX, dpiY, err := parseDPI(args[2])
				if err != nil {
					return err
				}
				dev, driver, closeDev, err := daemon().OpenDevice(ctx, args[0])
				if err != nil {
					return err
				}
				defer closeDev()
				profile := dev.ActiveProfile()
				res, err := resolutionArg(profile, args[1])
				if err != nil {
					return err
				}
				res.DPIX = dpiX
				res.DPIY = dpiY
				return driver.Commit(ctx, dev)
			})
		},
	}
}

func NewSetActiveDPI(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "set-active-dpi <addr> <slot>",
		Short: "Select the active resolution slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), daemon(), func(ctx context.Context) error {
				dev, driver, closeDev, err := daemon().OpenDevice(ctx, args[0])
				if err != nil {
					return err
				}
				defer closeDev()
				profile := dev.ActiveProfile()
				res, err := resolutionArg(profile, args[1])
				if err != nil {
					return err
				}
				if res.Disabled() {
					return fmt.Errorf("slot %d is disabled", res.Index)
				}
				for _, other := range profile.Resolutions {
					other.Active = false
					other.Default = false
				}
				res.Active = true
				res.Default = true
				return driver.Commit(ctx, dev)
			})
		},
	}
}

func NewSetLed(daemon daemonProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "set-led <addr> <index> <mode> [color]",
		Short: "Set an LED mode and color",
		Long:  `Set the mode (off, on, cycle, breathing) and optional RRGGBB color of an LED and commit.`,
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), daemon(), func(ctx context.Context) error {
				mode, err := ratbag.ParseLedMode(args[2])
				if err != nil {
					return err
				}
				dev, driver, closeDev, err := daemon().OpenDevice(ctx, args[0])
				if err != nil {
					return err
				}
				defer closeDev()
				profile := dev.ActiveProfile()
				index, err := strconv.Atoi(args[1])
				if err != nil || index < 0 || index >= len(profile.Leds) {
					return fmt.Errorf("invalid LED index: %q", args[1])
				}
				led := profile.Leds[index]
				if !led.Supports(mode) {
					return fmt.Errorf("LED %d does not support mode %s", index, mode)
				}
				led.Mode = mode
				if len(args) == 4 {
					color, err := ratbag.ParseColor(args[3])
					if err != nil {
						return err
					}
					led.Color = color
				}
				return driver.Commit(ctx, dev)
			})
		},
	}
}
