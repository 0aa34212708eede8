package server

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path:        "",
				BusyTimeout: 5000,
			},
		},

		Storage: StorageServerConfig{
			Root:            defaultRoot(),
			Workers:         runtime.NumCPU(),
			EraseCiphertext: true,
			ErasePasses:     1,
			SweepInterval:   "15m",
			OrphanGrace:     "10m",
		},

		Crypto: CryptoServerConfig{
			Cipher:    CipherAES256GCM,
			ChunkSize: "1MiB",
		},

		KeyStore: KeyStoreServerConfig{
			Service:      "docvault",
			Item:         "master-key",
			Backends:     []string{},
			FileDir:      "",
			FilePassword: "",
			MaxTries:     3,
			RetryInitial: "250ms",
			RetryMax:     "2s",
		},
	}
}

func defaultRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".docvault")
	}
	return ".docvault"
}

func setDefaults(v *viper.Viper) {
	defaults := GetServerDefault()

	v.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.time_format", defaults.Log.TimeFormat)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("log.no_color", defaults.Log.NoColor)
	v.SetDefault("log.json", defaults.Log.JSON)
	v.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	v.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	v.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	v.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	v.SetDefault("metadata.type", defaults.Metadata.Type)
	v.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)
	v.SetDefault("metadata.sqlite.busy_timeout", defaults.Metadata.SQLite.BusyTimeout)
	v.SetDefault("metadata.sqlite.debug", defaults.Metadata.SQLite.Debug)

	v.SetDefault("storage.root", defaults.Storage.Root)
	v.SetDefault("storage.workers", defaults.Storage.Workers)
	v.SetDefault("storage.erase_ciphertext", defaults.Storage.EraseCiphertext)
	v.SetDefault("storage.erase_passes", defaults.Storage.ErasePasses)
	v.SetDefault("storage.sweep_interval", defaults.Storage.SweepInterval)
	v.SetDefault("storage.orphan_grace", defaults.Storage.OrphanGrace)

	v.SetDefault("crypto.cipher", defaults.Crypto.Cipher)
	v.SetDefault("crypto.chunk_size", defaults.Crypto.ChunkSize)

	v.SetDefault("keystore.service", defaults.KeyStore.Service)
	v.SetDefault("keystore.item", defaults.KeyStore.Item)
	v.SetDefault("keystore.backends", defaults.KeyStore.Backends)
	v.SetDefault("keystore.file_dir", defaults.KeyStore.FileDir)
	v.SetDefault("keystore.file_password", defaults.KeyStore.FilePassword)
	v.SetDefault("keystore.max_tries", defaults.KeyStore.MaxTries)
	v.SetDefault("keystore.retry_initial", defaults.KeyStore.RetryInitial)
	v.SetDefault("keystore.retry_max", defaults.KeyStore.RetryMax)
}
