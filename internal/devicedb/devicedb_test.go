package devicedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadBuiltin(t *testing.T) {
	db := New(zap.NewNop(), "")
	require.NoError(t, db.Load())

	entry, ok := db.Match(0x258a, 0x0036)
	require.True(t, ok)
	assert.Equal(t, "glorious-model-o", entry.ID)
	assert.Equal(t, "sinowealth", entry.Driver)

	entry, ok = db.Match(0x258a, 0x0033)
	require.True(t, ok)
	assert.Equal(t, "glorious-model-d", entry.ID)

	_, ok = db.Match(0x046d, 0xc08c)
	assert.False(t, ok)

	entries := db.Entries()
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID)
	}
}

func TestLoadUserOverride(t *testing.T) {
	dir := t.TempDir()
	src := `---
name: Glorious Model O
driver: sinowealth
devices:
  - vid: 0x258a
    pid: 0x0036
  - vid: 0x258a
    pid: 0x2011
---
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model-o.md"), []byte(src), 0o644))

	db := New(zap.NewNop(), dir)
	require.NoError(t, db.Load())

	// the user file replaces the embedded entry and its matches
	entry, ok := db.Match(0x258a, 0x2011)
	require.True(t, ok)
	assert.Equal(t, "glorious-model-o", entry.ID)

	entry, ok = db.Get("glorious-model-o")
	require.True(t, ok)
	assert.Len(t, entry.Matches, 2)
}

func TestLoadSkipsBrokenUserFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("no frontmatter here\n"), 0o644))

	db := New(zap.NewNop(), dir)
	require.NoError(t, db.Load())

	_, ok := db.Match(0x258a, 0x0036)
	assert.True(t, ok)
}
