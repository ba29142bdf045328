package ratbagd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enkore/libratbag/internal/configsvc"
)

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	src := "hotplugPollSeconds: 7\nbackendRestartSeconds: 3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(src), 0o644))

	svc, err := configsvc.New(zap.NewNop())
	require.NoError(t, err)

	settings, err := loadSettings(Config{DataDir: dir}, svc, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Settings{HotplugPollSeconds: 7, BackendRestartSeconds: 3}, settings)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	svc, err := configsvc.New(zap.NewNop())
	require.NoError(t, err)

	settings, err := loadSettings(Config{DataDir: t.TempDir()}, svc, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Settings{}, settings)
}
