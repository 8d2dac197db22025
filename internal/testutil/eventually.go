package testutil

import (
	"testing"
	"time"
)

// Eventually retries fn on the given interval until it reports true,
// failing the test once timeout elapses. Runner and console tests use it
// to wait for the poll goroutine to settle into an expected state.
func Eventually(t *testing.T, timeout, interval time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !fn() {
		if time.Now().After(deadline) {
			if msg == "" {
				msg = "condition not met before timeout"
			}
			t.Fatalf("%s", msg)
		}
		time.Sleep(interval)
	}
}
