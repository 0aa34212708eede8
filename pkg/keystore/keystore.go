package keystore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/99designs/keyring"
	config "github.com/mwantia/docvault/internal/config/server"
	"github.com/mwantia/docvault/pkg/log"
	"golang.org/x/term"
)

// Provider hands out the process-wide master key.
type Provider interface {
	GetOrCreateKey(ctx context.Context) (Key, error)
	HasKey(ctx context.Context) (bool, error)
}

// KeyStore keeps the master key in a keyring item and caches it after the
// first successful read. The key is never rotated.
type KeyStore struct {
	ring keyring.Keyring
	item string
	log  log.LoggerService
	rand io.Reader

	mu     sync.Mutex
	cached *Key
}

var backendNames = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"secret-service": keyring.SecretServiceBackend,
	"kwallet":        keyring.KWalletBackend,
	"wincred":        keyring.WinCredBackend,
	"file":           keyring.FileBackend,
	"pass":           keyring.PassBackend,
	"keyctl":         keyring.KeyCtlBackend,
}

// Open opens the keyring described by cfg. An empty backend list lets the
// keyring library pick whatever the platform offers.
func Open(cfg config.KeyStoreServerConfig, logger log.LoggerService) (*KeyStore, error) {
	backends := make([]keyring.BackendType, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, ok := backendNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown keyring backend %q", name)
		}
		backends = append(backends, b)
	}

	if cfg.FileDir != "" {
		if err := os.MkdirAll(cfg.FileDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create keyring directory: %w", err)
		}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:      cfg.Service,
		AllowedBackends:  backends,
		FileDir:          cfg.FileDir,
		FilePasswordFunc: filePassword(cfg.FilePassword, stdinIsTerminal()),

		KeychainTrustApplication: true,
		LibSecretCollectionName:  cfg.Service,
		KWalletAppID:             cfg.Service,
		KWalletFolder:            cfg.Service,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}

	return New(ring, cfg.Item, logger), nil
}

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// filePassword only prompts when someone can answer. A headless process
// without a configured password fails instead of blocking on stdin.
func filePassword(password string, interactive bool) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}
	if interactive {
		return keyring.TerminalPrompt
	}
	return func(string) (string, error) {
		return "", fmt.Errorf("%w: file keyring is locked and no terminal is attached; set keystore.file_password", ErrKeyUnavailable)
	}
}

func New(ring keyring.Keyring, item string, logger log.LoggerService) *KeyStore {
	if logger == nil {
		logger = log.Discard()
	}
	return &KeyStore{
		ring: ring,
		item: item,
		log:  logger,
		rand: rand.Reader,
	}
}

func (ks *KeyStore) GetOrCreateKey(ctx context.Context) (Key, error) {
	if err := ctx.Err(); err != nil {
		return Key{}, err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.cached != nil {
		return *ks.cached, nil
	}

	item, err := ks.ring.Get(ks.item)
	switch {
	case err == nil:
		key, err := decodeKey(item.Data)
		if err != nil {
			return Key{}, err
		}
		ks.cached = &key
		return key, nil

	case errors.Is(err, keyring.ErrKeyNotFound):
		return ks.create()

	default:
		return Key{}, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
}

func (ks *KeyStore) create() (Key, error) {
	var key Key
	if _, err := io.ReadFull(ks.rand, key[:]); err != nil {
		return Key{}, fmt.Errorf("failed to generate master key: %w", err)
	}

	err := ks.ring.Set(keyring.Item{
		Key:         ks.item,
		Data:        key.Bytes(),
		Label:       "docvault master key",
		Description: "Encryption key for stored documents",
	})
	if err != nil {
		return Key{}, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}

	ks.log.Info("Generated new master key in item '%s'", ks.item)
	ks.cached = &key
	return key, nil
}

func (ks *KeyStore) HasKey(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ks.mu.Lock()
	cached := ks.cached != nil
	ks.mu.Unlock()
	if cached {
		return true, nil
	}

	if _, err := ks.ring.Get(ks.item); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrKeyUnavailable, err)
	}
	return true, nil
}

func decodeKey(data []byte) (Key, error) {
	var key Key
	if len(data) != KeySize {
		return key, fmt.Errorf("%w: expected %d bytes, got %d", ErrKeyCorrupt, KeySize, len(data))
	}
	copy(key[:], data)
	if key.IsZero() {
		return key, fmt.Errorf("%w: key is all zeros", ErrKeyCorrupt)
	}
	return key, nil
}
