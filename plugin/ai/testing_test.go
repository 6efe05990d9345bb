package ai

import (
	"testing"

	"github.com/cenkalti/backoff/v4"
)

// useZeroBackOff removes retry delays for the duration of a test.
func useZeroBackOff(t *testing.T) {
	t.Helper()
	prev := newBackOff
	newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	t.Cleanup(func() { newBackOff = prev })
}
