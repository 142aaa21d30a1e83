package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GROWSOME_TEST_MODE") == "" {
			_ = os.Setenv("GROWSOME_TEST_MODE", "1")
		}
	})
}
