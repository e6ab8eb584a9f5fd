// Package guard switches the process into test mode when imported from tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("INKPRESS_TEST_MODE") == "" {
			_ = os.Setenv("INKPRESS_TEST_MODE", "1")
		}
	})
}
