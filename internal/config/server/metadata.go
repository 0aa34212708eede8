package server

import "fmt"

// MetadataServerConfig holds metadata store configuration
type MetadataServerConfig struct {
	Type   string               `mapstructure:"type"   yaml:"type"`
	SQLite MetadataSQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
}

// MetadataSQLiteConfig holds SQLite-specific configuration
type MetadataSQLiteConfig struct {
	Path        string `mapstructure:"path"         yaml:"path"`
	BusyTimeout int    `mapstructure:"busy_timeout" yaml:"busy_timeout"`
	Debug       bool   `mapstructure:"debug"        yaml:"debug"`
}

func (c MetadataServerConfig) Validate() error {
	if c.Type != "sqlite" {
		return fmt.Errorf("unsupported type %q", c.Type)
	}
	if c.SQLite.BusyTimeout < 0 {
		return fmt.Errorf("sqlite.busy_timeout must not be negative")
	}
	return nil
}
