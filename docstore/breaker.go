package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/logging"

	"github.com/sony/gobreaker"
)

// BreakerStore decorates a Store with a circuit breaker around every remote
// operation. On the first network-class failure it attempts one automatic
// connection reset per process lifetime before surfacing the error, so a
// single dropped connection doesn't degrade every subsequent call.
type BreakerStore struct {
	inner   Store
	breaker *gobreaker.CircuitBreaker

	resetOnce sync.Once
}

func NewBreakerStore(inner Store) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "DocumentStoreCB",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
	return &BreakerStore{inner: inner, breaker: cb}
}

func (b *BreakerStore) execute(ctx context.Context, op func() error) error {
	var notFound bool
	_, err := b.breaker.Execute(func() (interface{}, error) {
		err := op()
		// Absence is a valid outcome, not a failure the breaker should count.
		if errors.Is(err, apperrors.ErrNotFound) {
			notFound = true
			return nil, nil
		}
		return nil, err
	})
	if notFound {
		return apperrors.ErrNotFound
	}
	if err == nil {
		return nil
	}
	if apperrors.IsNetwork(err) || errors.Is(err, gobreaker.ErrOpenState) {
		b.tryAutoReset(ctx)
	}
	return err
}

// tryAutoReset performs the single best-effort connection reset allowed per
// process lifetime, to avoid reset storms under sustained outage.
func (b *BreakerStore) tryAutoReset(ctx context.Context) {
	resetter, ok := b.inner.(Resetter)
	if !ok {
		return
	}
	b.resetOnce.Do(func() {
		logging.Logger.Warn("Event ID: AUTO_CONNECTION_RESET, Description: Attempting one-time automatic connection reset after network failure")
		if !resetter.RefreshConnection(ctx) {
			logging.Logger.Error("Event ID: AUTO_CONNECTION_RESET_FAILED, Description: Automatic connection reset did not succeed")
		}
	})
}

func (b *BreakerStore) Get(ctx context.Context, collection, id string, out interface{}) error {
	return b.execute(ctx, func() error { return b.inner.Get(ctx, collection, id, out) })
}

func (b *BreakerStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	return b.execute(ctx, func() error { return b.inner.Set(ctx, collection, id, doc) })
}

func (b *BreakerStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	return b.execute(ctx, func() error { return b.inner.Update(ctx, collection, id, patch) })
}

func (b *BreakerStore) Delete(ctx context.Context, collection, id string) error {
	return b.execute(ctx, func() error { return b.inner.Delete(ctx, collection, id) })
}

func (b *BreakerStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, out interface{}) error {
	return b.execute(ctx, func() error { return b.inner.Query(ctx, collection, filters, order, out) })
}

// Subscribe passes through; stream health is reported via the subscription's
// own error callback rather than the breaker.
func (b *BreakerStore) Subscribe(ctx context.Context, collection string, filters []Filter, order *Order, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	return b.inner.Subscribe(ctx, collection, filters, order, onSnapshot, onError)
}

// RefreshConnection forwards the user-triggered refresh to the inner store.
func (b *BreakerStore) RefreshConnection(ctx context.Context) bool {
	if resetter, ok := b.inner.(Resetter); ok {
		return resetter.RefreshConnection(ctx)
	}
	return false
}
