package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	config "github.com/mwantia/docvault/internal/config/server"
	"github.com/mwantia/docvault/pkg/blob"
	"github.com/mwantia/docvault/pkg/db/store"
	"github.com/mwantia/docvault/pkg/log"
	"github.com/mwantia/docvault/pkg/vault"
	"github.com/mwantia/fabric/pkg/container"
)

// Maintenance is the housekeeping surface the agent runs on a schedule.
type Maintenance interface {
	CleanupStaleTempFiles(ctx context.Context) blob.SweepResult
	SweepOrphans(ctx context.Context) (vault.OrphanReport, error)
}

type DocVaultAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg      *config.BaseServerConfig
	sc       *container.ServiceContainer
	log      log.LoggerService
	services *Services
}

func NewAgent(cfg *config.BaseServerConfig) *DocVaultAgent {
	return &DocVaultAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: log.NewLoggerService("docvault", cfg.Log),
	}
}

func (a *DocVaultAgent) setupServices(ctx context.Context) error {
	services, err := NewServices(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("failed to build services: %w", err)
	}
	a.services = services

	errs := container.Errors{}

	a.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](a.sc,
		container.With[log.LoggerService](),
		container.WithInstance(a.log)))

	a.log.Debug("Registering 'MetadataStore'...")
	errs.Add(container.Register[store.SQLiteStore](a.sc,
		container.With[store.MetadataStore](),
		container.WithInstance(services.Meta)))

	a.log.Debug("Registering 'Maintenance'...")
	errs.Add(container.Register[vault.Repository](a.sc,
		container.With[Maintenance](),
		container.WithInstance(services.Repository)))

	return errs.Errors()
}

func (a *DocVaultAgent) maintenance(ctx context.Context) (Maintenance, error) {
	ok, resolved := a.sc.ResolveByType(ctx, reflect.TypeOf((*Maintenance)(nil)).Elem())
	if !ok {
		return nil, fmt.Errorf("no maintenance service registered")
	}
	m, ok := resolved.(Maintenance)
	if !ok {
		return nil, fmt.Errorf("resolved service is not a Maintenance")
	}
	return m, nil
}

func (a *DocVaultAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.mutex.Lock()
	if err := a.setupServices(ctx); err != nil {
		a.mutex.Unlock()
		if a.services != nil {
			a.services.Close()
		}
		return err
	}
	a.mutex.Unlock()

	m, err := a.maintenance(ctx)
	if err != nil {
		a.services.Close()
		return err
	}

	// Plaintext left by a previous crash goes before anything else runs.
	a.sweep(ctx, m, true)

	if interval := a.cfg.Storage.SweepIntervalDuration(); interval > 0 {
		a.wait.Add(1)
		go a.sweepLoop(ctx, m, interval)
	}

	a.log.Info("Agent started (storage root '%s')", a.cfg.Storage.Root)
	<-ctx.Done()
	a.log.Info("Shutting down...")

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeoutDuration())
	defer cancelShutdown()

	done := make(chan struct{})
	go func() {
		a.wait.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdown.Done():
		a.log.Warn("Sweep did not finish within the shutdown timeout")
	}

	var errs []error
	if err := a.sc.Cleanup(shutdown); err != nil {
		errs = append(errs, fmt.Errorf("failed to complete service container cleanup: %w", err))
	}
	a.mutex.Lock()
	if err := a.services.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close services: %w", err))
	}
	a.mutex.Unlock()

	return errors.Join(errs...)
}

func (a *DocVaultAgent) sweepLoop(ctx context.Context, m Maintenance, interval time.Duration) {
	defer a.wait.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx, m, false)
		}
	}
}

// sweep erases decrypted temporaries of processes that are gone; with
// orphans set it also removes ciphertext no document references.
func (a *DocVaultAgent) sweep(ctx context.Context, m Maintenance, orphans bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	result := m.CleanupStaleTempFiles(ctx)
	if result.Failed > 0 {
		a.log.Warn("Temp sweep left %d file(s) behind", result.Failed)
	}
	if !orphans {
		return
	}

	report, err := m.SweepOrphans(ctx)
	if err != nil {
		a.log.Error("Orphan sweep failed: %v", err)
		return
	}
	if len(report.Failed) > 0 {
		a.log.Warn("Orphan sweep could not remove %d file(s)", len(report.Failed))
	}
}
