package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_Order(t *testing.T) {
	sm := NewShutdownManager(Discard(), nil, time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	assert.NoError(t, sm.Shutdown())
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestShutdownManager_Errors(t *testing.T) {
	sm := NewShutdownManager(Discard(), nil, 0)
	boom := errors.New("boom")
	sm.RegisterShutdownFunc(func(context.Context) error { return boom })
	sm.RegisterShutdownFunc(func(context.Context) error { return nil })

	assert.ErrorIs(t, sm.Shutdown(), boom)
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	sm := NewShutdownManager(Discard(), nil, time.Second)
	called := false
	sm.RegisterShutdownFunc(func(context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called)
}

func TestRecoverPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		defer RecoverPanic(Discard(), "test")
		panic("boom")
	})
	assert.EqualError(t, PanicError("boom"), "panic: boom")
	assert.NoError(t, PanicError(nil))
}
