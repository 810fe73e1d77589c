package config

// LoggingConfig configures the categorized file logger. The logging package
// reads this block from .garden/config.yaml itself at Initialize time; the
// struct here exists so garden init writes a complete file and Validate can
// check it.
type LoggingConfig struct {
	Level      string          `yaml:"level"`                // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`           // master toggle, false = no log files
	JSONFormat bool            `yaml:"json_format"`          // JSON entries instead of text
	Categories map[string]bool `yaml:"categories,omitempty"` // per-category toggles
}
