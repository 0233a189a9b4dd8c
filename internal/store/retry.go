package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how hard the calling layer retries a failing store.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

type retryingStore struct {
	next   ObjectStore
	policy RetryPolicy
}

// WithRetry wraps next so that transient failures are retried with
// exponential backoff. ErrNotFound is never retried. When retries are
// exhausted the returned error wraps ErrUnavailable.
func WithRetry(next ObjectStore, policy RetryPolicy) ObjectStore {
	if policy.MaxTries == 0 {
		policy = DefaultRetryPolicy()
	}
	return &retryingStore{next: next, policy: policy}
}

func (s *retryingStore) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if s.policy.InitialInterval > 0 {
		b.InitialInterval = s.policy.InitialInterval
	}
	if s.policy.MaxInterval > 0 {
		b.MaxInterval = s.policy.MaxInterval
	}
	return b
}

func (s *retryingStore) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := backoff.Retry(ctx, func() (*Object, error) {
		obj, err := s.next.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return obj, err
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.policy.MaxTries))
	if err != nil {
		return nil, classify("get", key, err)
	}
	return obj, nil
}

func (s *retryingStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.next.Put(ctx, key, data, opts)
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.policy.MaxTries))
	if err != nil {
		return classify("put", key, err)
	}
	return nil
}

func classify(op, key string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
}
