package media_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okteva/conclave/internal/media"
	"github.com/okteva/conclave/internal/media/mediatest"
)

func TestWorkerPoolRoundRobin(t *testing.T) {
	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 3, func(error) {})
	require.NoError(t, err)
	defer pool.Close()

	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, pool.Acquire().ID())
	}
	want := []string{
		"worker-0", "worker-1", "worker-2",
		"worker-0", "worker-1", "worker-2",
		"worker-0",
	}
	require.Equal(t, want, got)
}

func TestWorkerPoolMinimumSize(t *testing.T) {
	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 0, func(error) {})
	require.NoError(t, err)
	defer pool.Close()

	require.Equal(t, 1, pool.Size())
	require.Equal(t, "worker-0", pool.Acquire().ID())
}

func TestWorkerPoolForwardsWorkerDeath(t *testing.T) {
	engine := mediatest.NewEngine()
	var fatal error
	pool, err := media.NewWorkerPool(engine, 2, func(err error) { fatal = err })
	require.NoError(t, err)
	defer pool.Close()

	cause := errors.New("media process exited")
	engine.Workers[1].Die(cause)
	require.Same(t, cause, fatal)
}

func TestWorkerPoolCloseClosesAllWorkers(t *testing.T) {
	engine := mediatest.NewEngine()
	pool, err := media.NewWorkerPool(engine, 3, func(error) {})
	require.NoError(t, err)

	pool.Close()
	for _, w := range engine.Workers {
		require.True(t, w.Closed)
	}
}
