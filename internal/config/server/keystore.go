package server

import (
	"fmt"
	"time"
)

// KeyStoreServerConfig selects the secure storage holding the master key.
type KeyStoreServerConfig struct {
	Service      string   `mapstructure:"service"       yaml:"service"`
	Item         string   `mapstructure:"item"          yaml:"item"`
	Backends     []string `mapstructure:"backends"      yaml:"backends"`
	FileDir      string   `mapstructure:"file_dir"      yaml:"file_dir"`
	FilePassword string   `mapstructure:"file_password" yaml:"file_password"`
	MaxTries     int      `mapstructure:"max_tries"     yaml:"max_tries"`
	RetryInitial string   `mapstructure:"retry_initial" yaml:"retry_initial"`
	RetryMax     string   `mapstructure:"retry_max"     yaml:"retry_max"`
}

func (c KeyStoreServerConfig) RetryInitialDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryInitial)
	return d
}

func (c KeyStoreServerConfig) RetryMaxDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryMax)
	return d
}

func (c KeyStoreServerConfig) Validate() error {
	if c.Service == "" || c.Item == "" {
		return fmt.Errorf("service and item are required")
	}
	if c.MaxTries < 1 {
		return fmt.Errorf("max_tries must be at least 1")
	}
	for _, name := range []string{c.RetryInitial, c.RetryMax} {
		if _, err := time.ParseDuration(name); err != nil {
			return fmt.Errorf("invalid retry duration %q: %w", name, err)
		}
	}
	for _, b := range c.Backends {
		switch b {
		case "keychain", "secret-service", "kwallet", "wincred", "file", "pass", "keyctl":
		default:
			return fmt.Errorf("unknown backend %q", b)
		}
	}
	return nil
}
