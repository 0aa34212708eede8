package server

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type BaseServerConfig struct {
	ShutdownTimeout string `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	Log      LogServerConfig      `mapstructure:"log"      yaml:"log"`
	Metadata MetadataServerConfig `mapstructure:"metadata" yaml:"metadata"`
	Storage  StorageServerConfig  `mapstructure:"storage"  yaml:"storage"`
	Crypto   CryptoServerConfig   `mapstructure:"crypto"   yaml:"crypto"`
	KeyStore KeyStoreServerConfig `mapstructure:"keystore" yaml:"keystore"`
}

func LoadServerConfig() (*BaseServerConfig, error) {
	return LoadServerConfigFrom(viper.GetViper())
}

// LoadServerConfigFrom unmarshals and validates the configuration held by v
// after registering the defaults on it.
func LoadServerConfigFrom(v *viper.Viper) (*BaseServerConfig, error) {
	cfg := &BaseServerConfig{}

	setDefaults(v)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout, or 60s when unset or invalid.
func (c *BaseServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func (c *BaseServerConfig) Validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.Metadata.Validate(); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Crypto.Validate(); err != nil {
		return fmt.Errorf("crypto: %w", err)
	}
	if err := c.KeyStore.Validate(); err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	return nil
}

// resolvePaths fills paths that default relative to the storage root.
func (c *BaseServerConfig) resolvePaths() {
	if c.Metadata.SQLite.Path == "" {
		c.Metadata.SQLite.Path = c.Storage.DefaultMetadataPath()
	}
	if c.KeyStore.FileDir == "" {
		c.KeyStore.FileDir = c.Storage.DefaultKeyringDir()
	}
}
