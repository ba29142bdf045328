package ratbagcli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enkore/libratbag/internal/devicedb"
	"github.com/enkore/libratbag/internal/hidsvc"
	"github.com/enkore/libratbag/pkg/ratbag"
)

func TestParseDPI(t *testing.T) {
	tests := []struct {
		in         string
		dpiX, dpiY int
		wantErr    bool
	}{
		{in: "800", dpiX: 800, dpiY: 800},
		{in: "400x800", dpiX: 400, dpiY: 800},
		{in: "0", dpiX: 0, dpiY: 0},
		{in: "12000", dpiX: 12000, dpiY: 12000},
		{in: "400x", wantErr: true},
		{in: "x800", wantErr: true},
		{in: "fast", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			dpiX, dpiY, err := parseDPI(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dpiX, dpiX)
			assert.Equal(t, tt.dpiY, dpiY)
		})
	}
}

func TestNewDeviceStatus(t *testing.T) {
	dev := hidsvc.HidDevice{
		Address:       hidsvc.Address{Backend: "linux", ID: "258a:0036:1"},
		BackendDevice: hidsvc.BackendDevice{VendorID: 0x258a, ProductID: 0x0036},
		Name:          "Glorious Model O",
	}
	entry := devicedb.Entry{
		ID:     "glorious-model-o",
		Alias:  "GloriousModelO",
		Name:   "Glorious Model O",
		Driver: "sinowealth",
	}

	status := newDeviceStatus(dev, true, entry, true)
	assert.True(t, status.Connected)
	assert.Equal(t, "sinowealth", status.Driver)
	assert.Equal(t, "glorious-model-o", status.Entry)
	assert.Equal(t, "GloriousModelO", status.Alias)

	// unmatched devices keep the database columns empty
	status = newDeviceStatus(dev, false, devicedb.Entry{}, false)
	assert.False(t, status.Connected)
	assert.Empty(t, status.Driver)
	assert.Empty(t, status.Entry)
	assert.Empty(t, status.Alias)
}

func TestResolutionArg(t *testing.T) {
	profile := ratbag.NewProfile(0, 6, 0)

	res, err := resolutionArg(profile, "3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Index)

	_, err = resolutionArg(profile, "6")
	assert.Error(t, err)
	_, err = resolutionArg(profile, "-1")
	assert.Error(t, err)
	_, err = resolutionArg(profile, "two")
	assert.Error(t, err)
}
