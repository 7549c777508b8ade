package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShutdownReverseOrder(t *testing.T) {
	h := New(zaptest.NewLogger(t))

	var order []string
	for _, name := range []string{"store", "bus", "engine"} {
		h.AddCloser(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, h.Shutdown(context.Background()))
	assert.Equal(t, []string{"engine", "bus", "store"}, order)

	// повторный вызов ничего не закрывает
	require.NoError(t, h.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownCollectsErrors(t *testing.T) {
	h := New(zaptest.NewLogger(t))
	boom := errors.New("boom")
	closed := false

	h.AddCloser("ok", func() error { closed = true; return nil })
	h.AddCloser("bad", func() error { return boom })

	err := h.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.True(t, closed)
}

func TestShutdownTimeout(t *testing.T) {
	h := New(zaptest.NewLogger(t))
	release := make(chan struct{})
	defer close(release)

	h.AddCloser("stuck", func() error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := h.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
