package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("operation timeout after 30s"), true},
		{"timed out", errors.New("read timed out"), true},
		{"rate limited", errors.New("429 too many requests"), true},
		{"service unavailable", errors.New("503 service unavailable"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("connection reset by peer"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"forbidden", errors.New("403 forbidden"), false},
		{"not found", errors.New("relation not found"), false},
		{"unique violation", errors.New("unique violation on thinking_nodes_pkey"), false},
		{"duplicate key", errors.New("duplicate key value violates unique constraint"), false},
		{"invalid input", errors.New("invalid input syntax for type uuid"), false},
		{"permission denied", errors.New("permission denied for table thinking_nodes"), false},
		{"unknown defaults to transient", errors.New("something odd happened"), true},
		{"permanent wins over transient", errors.New("auth timeout"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), "test_op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	restore := swapBackoff(t, time.Millisecond)
	defer restore()

	calls := 0
	err := Do(context.Background(), "test_op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	permanent := errors.New("permission denied")
	err := Do(context.Background(), "test_op", func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_CapabilityErrorFailsImmediately(t *testing.T) {
	calls := 0
	capErr := NewCapabilityError("table", "hypothesis_experiments", errors.New("relation does not exist"))
	err := Do(context.Background(), "test_op", func(context.Context) error {
		calls++
		return capErr
	})
	assert.True(t, IsCapability(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	restore := swapBackoff(t, time.Millisecond)
	defer restore()

	calls := 0
	transient := errors.New("request timeout")
	err := Do(context.Background(), "test_op", func(context.Context) error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, calls)
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	restore := swapBackoff(t, time.Minute)
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, "test_op", func(context.Context) error {
		return errors.New("connection refused")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

// swapBackoff shrinks the retry delays so tests run fast.
func swapBackoff(t *testing.T, d time.Duration) func() {
	t.Helper()
	orig := retryBackoff
	retryBackoff = []time.Duration{d, d, d}
	return func() { retryBackoff = orig }
}
