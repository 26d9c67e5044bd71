package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	clock := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, clock.Now())

	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, NewManualClock(start).Now())
}

func TestManualClock_OnlyMovesWhenAdvanced(t *testing.T) {
	clock := NewManualClock(time.Time{})

	assert.Equal(t, clock.Now(), clock.Now())

	got := clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, Epoch.Add(1500*time.Millisecond), got)
	assert.Equal(t, got, clock.Now())

	// Never backwards
	clock.Advance(-time.Hour)
	assert.Equal(t, got, clock.Now())
}

func TestManualClock_Reset(t *testing.T) {
	clock := NewManualClock(time.Time{})
	clock.Advance(time.Minute)

	clock.Reset(Epoch)
	assert.Equal(t, Epoch, clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(time.Time{})
	const numGoroutines = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, Epoch.Add(numGoroutines*time.Second), clock.Now())
}
