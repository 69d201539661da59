package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
name: Arwen
realm: Proudmoore
class_tag: MAGE
group: raidnight
protocol:
  convergence_window_ms: 5000
  top_k: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Arwen-Proudmoore", cfg.Identity())
	require.Equal(t, "raidnight", cfg.Group)

	sc := cfg.Session()
	require.Equal(t, 5*time.Second, sc.ConvergenceWindow)
	require.Equal(t, 10, sc.TopK)
	require.Zero(t, sc.Heartbeat, "unset knobs defer to session defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "name: Arwen\nrealm: Proudmoore\ngroup: raidnight\n")
	t.Setenv("JB_NAME", "Brill")
	t.Setenv("JB_GROUP", "other")
	t.Setenv("NATS_URL", "nats://10.0.0.5:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "Brill-Proudmoore", cfg.Identity())
	require.Equal(t, "other", cfg.Group)
	require.Equal(t, "nats://10.0.0.5:4222", cfg.NATSURL)
}

func TestMissingFileEnvOnly(t *testing.T) {
	t.Setenv("JB_NAME", "Arwen")
	t.Setenv("JB_REALM", "Proudmoore")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "Arwen-Proudmoore", cfg.Identity())
	require.Equal(t, "default", cfg.Group)
}

func TestMissingIdentityFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
