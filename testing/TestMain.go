// Package testing provides a TestMain that pins the test-mode environment for
// packages that start binaries.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("TRUSTLEDGER_TEST_MODE", "1")
		if os.Getenv("BOOTSTRAP_ADMIN") == "" {
			_ = os.Setenv("BOOTSTRAP_ADMIN", "test-admin")
		}
		_ = os.Unsetenv("REDIS_ADDR")
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m with the test-mode environment in place.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
