package midi

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings mirrors the host application's key/value settings store:
// a global action→shortcut-list binding table, a collection of scene
// records each carrying a shortcut-string list, and the device names
// to attach at startup. Malformed entries are skipped at rebuild time,
// never fatal.
type Settings struct {
	Actions map[string][]string `yaml:"actions"`
	Scenes  []SceneBinding      `yaml:"scenes"`
	Devices DeviceSettings      `yaml:"devices"`
}

// SceneBinding maps shortcut signatures to a scene switch.
type SceneBinding struct {
	Name      string   `yaml:"name"`
	Shortcuts []string `yaml:"shortcuts"`
}

// DeviceSettings names the ports to connect at startup. Empty means
// no automatic connect for that direction.
type DeviceSettings struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// LoadSettings reads and parses a settings file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, errors.Wrapf(err, "read settings %q", path)
	}
	return ParseSettings(data)
}

// ParseSettings decodes settings from yaml. A decode error returns the
// zero Settings so callers can keep running with no bindings.
func ParseSettings(data []byte) (Settings, error) {
	var cfg Settings
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Settings{}, errors.Wrap(err, "parse settings")
	}
	return cfg, nil
}
