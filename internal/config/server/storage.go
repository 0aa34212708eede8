package server

import (
	"fmt"
	"path/filepath"
	"time"
)

// StorageServerConfig describes where encrypted pages, thumbnails and
// decrypted temporaries live, and how they are erased.
type StorageServerConfig struct {
	Root            string `mapstructure:"root"             yaml:"root"`
	Workers         int    `mapstructure:"workers"          yaml:"workers"`
	EraseCiphertext bool   `mapstructure:"erase_ciphertext" yaml:"erase_ciphertext"`
	ErasePasses     int    `mapstructure:"erase_passes"     yaml:"erase_passes"`
	SweepInterval   string `mapstructure:"sweep_interval"   yaml:"sweep_interval"`
	OrphanGrace     string `mapstructure:"orphan_grace"     yaml:"orphan_grace"`
}

func (c StorageServerConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// OrphanGraceDuration is how old unreferenced ciphertext must be before
// the orphan sweep removes it.
func (c StorageServerConfig) OrphanGraceDuration() time.Duration {
	d, _ := time.ParseDuration(c.OrphanGrace)
	return d
}

func (c StorageServerConfig) DefaultMetadataPath() string {
	return filepath.Join(c.Root, "metadata.db")
}

func (c StorageServerConfig) DefaultKeyringDir() string {
	return filepath.Join(c.Root, "keyring")
}

func (c StorageServerConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.ErasePasses < 1 {
		return fmt.Errorf("erase_passes must be at least 1")
	}
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		return fmt.Errorf("sweep_interval: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("sweep_interval must not be negative")
	}
	if d, err = time.ParseDuration(c.OrphanGrace); err != nil {
		return fmt.Errorf("orphan_grace: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("orphan_grace must not be negative")
	}
	return nil
}
