package keystore

import (
	"context"
	"errors"
	"time"

	"github.com/grailbio/base/retry"
	"github.com/mwantia/docvault/pkg/log"
)

// Retrying retries ErrKeyUnavailable from the wrapped provider according
// to policy. Other errors are returned immediately.
type Retrying struct {
	next   Provider
	policy retry.Policy
	log    log.LoggerService
}

func NewRetrying(next Provider, policy retry.Policy, logger log.LoggerService) *Retrying {
	if logger == nil {
		logger = log.Discard()
	}
	return &Retrying{
		next:   next,
		policy: policy,
		log:    logger,
	}
}

// BackoffPolicy is the default exponential policy used by the agent and CLI.
func BackoffPolicy(maxTries int, initial, max time.Duration) retry.Policy {
	return retry.MaxRetries(retry.Backoff(initial, max, 2), maxTries)
}

func (r *Retrying) GetOrCreateKey(ctx context.Context) (Key, error) {
	var key Key
	err := r.do(ctx, "get key", func() error {
		var err error
		key, err = r.next.GetOrCreateKey(ctx)
		return err
	})
	return key, err
}

func (r *Retrying) HasKey(ctx context.Context) (bool, error) {
	var ok bool
	err := r.do(ctx, "check key", func() error {
		var err error
		ok, err = r.next.HasKey(ctx)
		return err
	})
	return ok, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrKeyUnavailable) {
			return err
		}

		r.log.Warn("Failed to %s (attempt %d): %v", op, retries+1, err)
		if werr := retry.Wait(ctx, r.policy, retries); werr != nil {
			r.log.Debug("Giving up on %s: %v", op, werr)
			return err
		}
	}
}
