package token

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

type stuckDelivery struct {
	domain.Service
	release chan struct{}
}

func (s *stuckDelivery) Wait() { <-s.release }

func TestDrainOnStopIsBoundedByStopContext(t *testing.T) {
	svc := &stuckDelivery{release: make(chan struct{})}
	defer close(svc.release)

	lc := fxtest.NewLifecycle(t)
	drainOnStop(lc, svc)
	require.NoError(t, lc.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, lc.Stop(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestDrainOnStopWaitsForInflightDeliveries(t *testing.T) {
	svc := &stuckDelivery{release: make(chan struct{})}

	lc := fxtest.NewLifecycle(t)
	drainOnStop(lc, svc)
	require.NoError(t, lc.Start(context.Background()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(svc.release)
	}()
	require.NoError(t, lc.Stop(context.Background()))

	select {
	case <-svc.release:
	default:
		t.Fatal("stop returned before deliveries drained")
	}
}
