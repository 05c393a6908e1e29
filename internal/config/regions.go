package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RegionManifest pins the set of state/city partitions the index scan walks.
// Easier to review in YAML than as env vars.
type RegionManifest struct {
	Regions []RegionConfig `yaml:"regions"`
}

// RegionConfig lists the cities scanned for one state.
type RegionConfig struct {
	State  string   `yaml:"state"`
	Cities []string `yaml:"cities"`
}

// LoadRegionManifest reads the manifest at path.
// Returns nil without error if the file doesn't exist.
func LoadRegionManifest(path string) (*RegionManifest, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from application config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var m RegionManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Count returns the number of state/city pairs in the manifest.
func (m *RegionManifest) Count() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, r := range m.Regions {
		n += len(r.Cities)
	}
	return n
}
