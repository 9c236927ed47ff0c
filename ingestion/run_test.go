package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_UnauthorizedConnectIsFatal(t *testing.T) {
	c := newFakeConnector("one")
	c.connectErr = ErrUnauthorized
	env := newTestEnv(t, nil, WithRegistry(newFakeRegistry("@a")), WithConnectors(c))

	err := env.pipeline.Run(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRun_ConnectError(t *testing.T) {
	c := newFakeConnector("one")
	c.connectErr = errors.New("network down")
	env := newTestEnv(t, nil, WithRegistry(newFakeRegistry("@a")), WithConnectors(c))

	err := env.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFatal)
}

func TestRun_WatchUnauthorizedIsFatal(t *testing.T) {
	c := newFakeConnector("one")
	c.addChat("@a", 1)
	c.watchErr = ErrUnauthorized
	env := newTestEnv(t, nil, WithRegistry(newFakeRegistry("@a")), WithConnectors(c))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	err := env.pipeline.Run(ctx)
	assert.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, env.pipeline.ActiveSources())
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := newFakeConnector("one")
	c.addChat("@a", 1)
	reg := newFakeRegistry("@a")
	env := newTestEnv(t, nil,
		WithRegistry(reg),
		WithConnectors(c),
		WithReconcileInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.pipeline.Run(ctx) }()

	require.Eventually(t, func() bool { return c.watching("@a") }, waitFor, tick)

	// The ticker picks up registry changes.
	c.addChat("@b", 2)
	reg.set("@a", "@b")
	require.Eventually(t, func() bool { return c.watching("@b") }, waitFor, tick)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not stop after cancellation")
	}
	assert.Empty(t, env.pipeline.ActiveSources())
	assert.False(t, c.watching("@a"))
}

func TestRunWithCooldown_WaitsAfterFatal(t *testing.T) {
	c := newFakeConnector("one")
	c.connectErr = ErrUnauthorized
	env := newTestEnv(t, nil,
		WithRegistry(newFakeRegistry("@a")),
		WithConnectors(c),
		WithAuthCooldown(30*time.Millisecond))

	start := time.Now()
	err := env.pipeline.RunWithCooldown(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRunWithCooldown_Cancellable(t *testing.T) {
	c := newFakeConnector("one")
	c.connectErr = ErrUnauthorized
	env := newTestEnv(t, nil,
		WithRegistry(newFakeRegistry("@a")),
		WithConnectors(c),
		WithAuthCooldown(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := env.pipeline.RunWithCooldown(ctx)
	assert.ErrorIs(t, err, ErrFatal)
}
