package devicedb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntry(t *testing.T) {
	src := []byte(`---
name: Glorious Model O
driver: sinowealth
devices:
  - vid: 0x258a
    pid: 0x0036
  - vid: "258a"
    pid: "0037"
---

# Glorious Model O

Some notes about the device.
`)
	parser := NewParser()
	entry, err := parser.Parse(src)
	require.NoError(t, err)

	assert.Equal(t, "glorious-model-o", entry.ID)
	assert.Equal(t, "GloriousModelO", entry.Alias)
	assert.Equal(t, "Glorious Model O", entry.Name)
	assert.Equal(t, "sinowealth", entry.Driver)
	assert.Equal(t, []DeviceMatch{
		{VendorID: 0x258a, ProductID: 0x0036},
		{VendorID: 0x258a, ProductID: 0x0037},
	}, entry.Matches)
}

func TestParseEntryErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no frontmatter", "# Just a document\n"},
		{"missing name", "---\ndriver: sinowealth\ndevices:\n  - vid: 1\n    pid: 2\n---\n"},
		{"missing driver", "---\nname: Some Mouse\ndevices:\n  - vid: 1\n    pid: 2\n---\n"},
		{"missing devices", "---\nname: Some Mouse\ndriver: sinowealth\n---\n"},
		{"missing pid", "---\nname: Some Mouse\ndriver: sinowealth\ndevices:\n  - vid: 1\n---\n"},
		{"vid out of range", "---\nname: Some Mouse\ndriver: sinowealth\ndevices:\n  - vid: 65536\n    pid: 2\n---\n"},
		{"bad hex string", "---\nname: Some Mouse\ndriver: sinowealth\ndevices:\n  - vid: \"xyz\"\n    pid: 2\n---\n"},
	}
	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestParseIDForms(t *testing.T) {
	tests := []struct {
		in   any
		want uint16
	}{
		{0x258a, 0x258a},
		{uint64(0x36), 0x36},
		{"258a", 0x258a},
		{"0x258A", 0x258a},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
