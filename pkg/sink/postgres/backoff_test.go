package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffMonotonicGrowthUpToCap(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBackoffTimer(time.Second, time.Minute)
	b.now = func() time.Time { return now }
	b.Rewind()

	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		wait := b.Wait()
		assert.GreaterOrEqual(t, wait, prev, "attempt %d", i)
		assert.LessOrEqual(t, wait, time.Minute)
		prev = wait
		b.Extend()
	}
	assert.Equal(t, time.Minute, b.Wait(), "growth is capped")
}

func TestBackoffExpiry(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBackoffTimer(time.Second, time.Minute)
	b.now = func() time.Time { return now }
	b.Rewind()

	assert.False(t, b.Expired())
	now = now.Add(time.Second)
	assert.True(t, b.Expired())
}

func TestBackoffRewindResets(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBackoffTimer(time.Second, time.Minute)
	b.now = func() time.Time { return now }
	for i := 0; i < 5; i++ {
		b.Extend()
	}
	assert.Equal(t, 32*time.Second, b.Wait())
	b.Rewind()
	assert.Equal(t, time.Second, b.Wait())
}
