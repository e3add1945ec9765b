package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	var wg sync.WaitGroup
	counter := map[string]int{}
	var mapMu sync.Mutex
	for i := 0; i < 100; i++ {
		wg.Add(1)
		key := []string{"a", "b", "c"}[i%3]
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			mapMu.Lock()
			counter[key]++
			mapMu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 34, counter["a"])
	assert.Equal(t, 0, km.size(), "unused locks must be released")
}
