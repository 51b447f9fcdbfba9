package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewMemory(time.Second).WithClock(func() time.Time { return now })

	assert.True(t, c.SetIfAbsent("k", "v"))
	now = now.Add(time.Second)
	assert.False(t, c.SetIfAbsent("k", "v"), "still held at exactly the TTL")

	now = now.Add(time.Millisecond)
	assert.True(t, c.SetIfAbsent("k", "v"))
}

func TestDelete(t *testing.T) {
	c := NewMemory(time.Minute)
	assert.True(t, c.SetIfAbsent("k", "v"))
	c.Delete("k")
	assert.Zero(t, c.Len())
	assert.True(t, c.SetIfAbsent("k", "v"))
}

func TestSetIfAbsent(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewMemory(1600 * time.Millisecond).WithClock(func() time.Time { return now })

	assert.True(t, c.SetIfAbsent("MANUAL|G1-1", "1"))
	assert.False(t, c.SetIfAbsent("MANUAL|G1-1", "1"))
	assert.True(t, c.SetIfAbsent("CAMERA|G1-1", "1"))

	now = now.Add(time.Second)
	assert.False(t, c.SetIfAbsent("MANUAL|G1-1", "1"))

	now = now.Add(time.Second)
	assert.True(t, c.SetIfAbsent("MANUAL|G1-1", "1"))
	// CAMERA expired and was swept on the last write.
	assert.Equal(t, 1, c.Len())
}

func TestSetIfAbsentDisabled(t *testing.T) {
	c := NewMemory(0)
	assert.True(t, c.SetIfAbsent("k", "v"))
	assert.True(t, c.SetIfAbsent("k", "v"))
	assert.Equal(t, 0, c.Len())
}

func TestSetIfAbsentConcurrent(t *testing.T) {
	c := NewMemory(time.Minute)
	var wg sync.WaitGroup
	var mu sync.Mutex
	stored := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.SetIfAbsent("same", "v") {
				mu.Lock()
				stored++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, stored)
}
