package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("INKPRESS_TEST_MODE", "1")
		if os.Getenv("STORAGE_DRIVER") == "" {
			_ = os.Setenv("STORAGE_DRIVER", "local")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
