package retry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/internal/tuserr"
)

func testLogger() logging.Logger {
	return logging.New(os.Stderr, logging.Disabled, "retry-test")
}

func testConfig() Config {
	c := DefaultConfig(testLogger())
	c.InitialDelay = time.Millisecond
	c.MaxDelay = 5 * time.Millisecond
	return c
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	err := Do(context.Background(), func() error { return nil }, testConfig())
	assert.NoError(t, err)
}

func TestDoDoesNotRetryNonRetryableError(t *testing.T) {
	calls := 0
	plain := errors.New("boom")
	err := Do(context.Background(), func() error {
		calls++
		return plain
	}, testConfig())
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransportErrorUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return tuserr.NewTransportError("dial failed", nil)
		}
		return nil
	}, testConfig())
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	cfg := testConfig()
	cfg.MaxRetries = 2
	err := Do(context.Background(), func() error {
		calls++
		return tuserr.NewTransportError("dial failed", nil)
	}, cfg)
	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error {
		return tuserr.NewTransportError("dial failed", nil)
	}, testConfig())
	assert.Error(t, err)
}
