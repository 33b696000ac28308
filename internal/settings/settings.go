// Package settings loads process-level overrides for cmd/zeroshot: the
// storage directory, HTTP/health ports, and default model level. Cluster
// configuration itself is JSON authored per cluster (pkg/clusterconfig);
// this is the process's own, much smaller, YAML settings surface.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds process-level overrides loadable from a YAML file pointed
// to by ZEROSHOT_SETTINGS_FILE.
type Settings struct {
	StorageDir   string `yaml:"storage_dir"`
	HTTPAddr     string `yaml:"http_addr"`
	HealthAddr   string `yaml:"health_addr"`
	DefaultModel string `yaml:"default_model"`
}

// Load reads and parses the YAML file at path. A missing path is not an
// error: callers fall back to defaults/env vars.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("settings: reading %s: %w", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	return &s, nil
}
