// Package guard switches the binaries into test mode when blank-imported by a
// test, so main never opens stores or listeners.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func setDefault(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}

func init() {
	once.Do(func() {
		setDefault("TRUSTLEDGER_TEST_MODE", "1")
		setDefault("BOOTSTRAP_ADMIN", "test-admin")
		setDefault("STORE_DRIVER", "memory")
	})
}
