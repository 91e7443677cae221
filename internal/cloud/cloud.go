package cloud

import (
	"context"
	"time"
)

// Instance is one entry of the provider's live inventory. The cloud view
// contributes only identity, display name and lifecycle status to a report.
type Instance struct {
	InstanceID  string `json:"instanceId"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
}

// RetryPolicy wraps a provider call. The core treats it as opaque: policies
// own their attempt counts, delays and timeouts.
type RetryPolicy func(ctx context.Context, op func(ctx context.Context) error) error

// Provider is the cloud inventory API.
type Provider interface {
	GetInstances(ctx context.Context, group string, retry RetryPolicy) ([]Instance, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, group string, retry RetryPolicy) ([]Instance, error)

func (f ProviderFunc) GetInstances(ctx context.Context, group string, retry RetryPolicy) ([]Instance, error) {
	return f(ctx, group, retry)
}

// NoRetry runs the call exactly once.
func NoRetry() RetryPolicy {
	return func(ctx context.Context, op func(ctx context.Context) error) error {
		return op(ctx)
	}
}

// ExponentialBackoff retries up to maxAttempts with delays of base, 2*base,
// 4*base, ... between attempts, honoring context cancellation.
func ExponentialBackoff(maxAttempts int, base time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return func(ctx context.Context, op func(ctx context.Context) error) error {
		delay := base
		var err error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
				delay *= 2
			}
			if err = op(ctx); err == nil {
				return nil
			}
		}
		return err
	}
}
