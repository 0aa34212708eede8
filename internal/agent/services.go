package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	config "github.com/mwantia/docvault/internal/config/server"
	"github.com/mwantia/docvault/pkg/blob"
	"github.com/mwantia/docvault/pkg/crypto"
	"github.com/mwantia/docvault/pkg/db/store"
	"github.com/mwantia/docvault/pkg/eraser"
	"github.com/mwantia/docvault/pkg/keystore"
	"github.com/mwantia/docvault/pkg/log"
	"github.com/mwantia/docvault/pkg/vault"
)

// Services is the wired document store. Both the agent and the one-shot
// CLI commands build it through NewServices.
type Services struct {
	Log        log.LoggerService
	Keys       keystore.Provider
	Eraser     *eraser.Eraser
	Engine     *crypto.Engine
	Blobs      *blob.Store
	Meta       *store.SQLiteStore
	Repository *vault.Repository
}

func NewServices(ctx context.Context, cfg *config.BaseServerConfig, logger log.LoggerService) (*Services, error) {
	if err := os.MkdirAll(cfg.Storage.Root, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	ks, err := keystore.Open(cfg.KeyStore, logger.Named("keystore"))
	if err != nil {
		return nil, err
	}
	policy := keystore.BackoffPolicy(cfg.KeyStore.MaxTries,
		cfg.KeyStore.RetryInitialDuration(), cfg.KeyStore.RetryMaxDuration())
	keys := keystore.NewRetrying(ks, policy, logger.Named("keystore"))

	er := eraser.New(cfg.Storage.ErasePasses, logger.Named("eraser"))

	suite, err := crypto.ParseSuite(cfg.Crypto.Cipher)
	if err != nil {
		return nil, err
	}
	chunk, err := cfg.Crypto.ChunkSizeBytes()
	if err != nil {
		return nil, fmt.Errorf("invalid chunk size: %w", err)
	}
	engine, err := crypto.New(keys,
		crypto.WithSuite(suite),
		crypto.WithChunkSize(chunk),
		crypto.WithEraser(er),
		crypto.WithLogger(logger.Named("crypto")))
	if err != nil {
		return nil, err
	}

	blobs, err := blob.New(cfg.Storage.Root, engine, er, blob.Options{
		EraseCiphertext: cfg.Storage.EraseCiphertext,
		Logger:          logger.Named("blob"),
	})
	if err != nil {
		return nil, err
	}

	meta, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:        cfg.Metadata.SQLite.Path,
		BusyTimeout: cfg.Metadata.SQLite.BusyTimeout,
		Debug:       cfg.Metadata.SQLite.Debug,
		Logger:      logger.Named("metadata"),
	})
	if err != nil {
		return nil, err
	}
	if err := meta.Connect(ctx); err != nil {
		return nil, errors.Join(err, meta.Close())
	}
	if err := meta.Migrate(ctx); err != nil {
		return nil, errors.Join(err, meta.Close())
	}

	repo := vault.New(meta, blobs, er, vault.Options{
		Workers:     cfg.Storage.Workers,
		OrphanGrace: cfg.Storage.OrphanGraceDuration(),
		Logger:      logger.Named("vault"),
	})

	return &Services{
		Log:        logger,
		Keys:       keys,
		Eraser:     er,
		Engine:     engine,
		Blobs:      blobs,
		Meta:       meta,
		Repository: repo,
	}, nil
}

// Close erases this process's decrypted temporaries and closes the
// metadata store.
func (s *Services) Close() error {
	return errors.Join(s.Blobs.Close(), s.Meta.Close())
}
