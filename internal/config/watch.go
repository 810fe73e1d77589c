package config

import "gopkg.in/yaml.v3"

// WatchConfig configures the seed directory watcher.
type WatchConfig struct {
	// SeedDir is the directory watched for seed manifests.
	SeedDir string `yaml:"seed_dir"`

	// Debounce is how long a manifest must sit quiet before it is loaded.
	Debounce string `yaml:"debounce"`

	// ScanExisting feeds manifests already on disk into the first cycle
	// (default: true).
	ScanExisting bool `yaml:"scan_existing"`

	scanExistingSet bool
}

// UnmarshalYAML tracks whether scan_existing was explicitly set so the
// default stays true for partial files.
func (c *WatchConfig) UnmarshalYAML(value *yaml.Node) error {
	type alias WatchConfig
	if err := value.Decode((*alias)(c)); err != nil {
		return err
	}

	aux := struct {
		ScanExisting *bool `yaml:"scan_existing"`
	}{}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.ScanExisting != nil {
		c.ScanExisting = *aux.ScanExisting
		c.scanExistingSet = true
	}
	return nil
}

// ShouldScanExisting reports whether the initial scan runs. True unless the
// config explicitly disables it, so a zero value behaves like the default.
func (c *WatchConfig) ShouldScanExisting() bool {
	if c.scanExistingSet {
		return c.ScanExisting
	}
	return true
}
