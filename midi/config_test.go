package midi

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSettings = `
actions:
  next_slide: ["cc:6", "note:60"]
  previous_slide: ["note:61"]
  start_stream: ["note:62"]
scenes:
  - name: Worship
    shortcuts: ["note:70"]
  - name: Sermon
    shortcuts: ["note:71", "cc:20"]
devices:
  input: "Pad B"
  output: "Pad B"
`

func TestParseSettings(t *testing.T) {
	cfg, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)
	require.Equal(t, []string{"cc:6", "note:60"}, cfg.Actions["next_slide"])
	require.Len(t, cfg.Scenes, 2)
	require.Equal(t, "Sermon", cfg.Scenes[1].Name)
	require.Equal(t, "Pad B", cfg.Devices.Input)
	require.Equal(t, "Pad B", cfg.Devices.Output)
}

func TestParseSettingsEmptySectionsAllowed(t *testing.T) {
	cfg, err := ParseSettings([]byte("actions: {}\n"))
	require.NoError(t, err)
	require.Empty(t, cfg.Actions)
	require.Empty(t, cfg.Scenes)
	require.Empty(t, cfg.Devices.Input)
}

func TestParseSettingsInvalidYaml(t *testing.T) {
	cfg, err := ParseSettings([]byte("actions: [not: a: map"))
	require.Error(t, err)
	require.Equal(t, Settings{}, cfg)
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midibridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o600))

	cfg, err := LoadSettings(path)
	require.NoError(t, err)
	require.Equal(t, "Pad B", cfg.Devices.Input)

	_, err = LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplySettingsRebuildsDispatch(t *testing.T) {
	drv := newFakeDriver([]string{"Pad B"}, nil)
	var navigated int
	s := newTestService(t, drv, WithActions(Actions{
		NavigatePresentation: func(Direction) { navigated++ },
	}))
	cfg, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)
	s.ApplySettings(cfg)

	require.True(t, s.Enable())
	require.True(t, s.ConnectInputByName("Pad B", false))
	drv.lastInput().deliver(cc(6, 127))
	require.Equal(t, 1, navigated)

	// A configuration change replaces the map wholesale.
	s.ApplySettings(Settings{})
	drv.lastInput().deliver(cc(6, 127))
	require.Equal(t, 1, navigated)
}
