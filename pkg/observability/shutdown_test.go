package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestNewShutdownManager(t *testing.T) {
	sm := NewShutdownManager(nil, 0)
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
	assert.NotNil(t, sm.log)

	sm = NewShutdownManager(quietLogger(), time.Second, &http.Server{}, &http.Server{})
	assert.Equal(t, time.Second, sm.shutdownTimeout)
	assert.Len(t, sm.servers, 2)
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	t.Run("runs functions after servers stop", func(t *testing.T) {
		ts := httptest.NewUnstartedServer(http.NotFoundHandler())
		ts.Start()
		defer ts.Close()

		sm := NewShutdownManager(quietLogger(), 5*time.Second, ts.Config)
		var calls atomic.Int32
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.NoError(t, sm.WaitForShutdown(ctx))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("collects function errors", func(t *testing.T) {
		sm := NewShutdownManager(quietLogger(), time.Second)
		sm.RegisterShutdownFunc(func(ctx context.Context) error { return errors.New("close db") })
		sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

		err := sm.Shutdown()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 errors")
		assert.Contains(t, err.Error(), "close db")
	})

	t.Run("timeout", func(t *testing.T) {
		sm := NewShutdownManager(quietLogger(), 50*time.Millisecond)
		release := make(chan struct{})
		defer close(release)
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			<-release
			return nil
		})

		err := sm.Shutdown()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})
}
