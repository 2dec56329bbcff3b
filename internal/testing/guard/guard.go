package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("CAREMESH_TEST_MODE") == "" {
			_ = os.Setenv("CAREMESH_TEST_MODE", "1")
		}
	})
}
