package election

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAcquireUniqueness(t *testing.T) {
	e := New(testLogger())

	assert.True(t, e.Acquire("a"))
	assert.False(t, e.Acquire("b"))
	assert.False(t, e.Acquire("c"))
	assert.Equal(t, "a", e.Holder())
}

func TestAcquireIdempotentForHolder(t *testing.T) {
	e := New(testLogger())

	assert.True(t, e.Acquire("a"))
	assert.True(t, e.Acquire("a"))
	assert.Equal(t, "a", e.Holder())
}

func TestReleaseOnlyByHolder(t *testing.T) {
	e := New(testLogger())

	assert.True(t, e.Acquire("a"))

	// A non-holder release is a no-op
	e.Release("b")
	assert.Equal(t, "a", e.Holder())
	assert.False(t, e.Acquire("b"))

	e.Release("a")
	assert.Equal(t, "", e.Holder())
	assert.True(t, e.Acquire("b"))
}

func TestIsHolder(t *testing.T) {
	e := New(testLogger())

	assert.False(t, e.IsHolder("a"))
	e.Acquire("a")
	assert.True(t, e.IsHolder("a"))
	assert.False(t, e.IsHolder("b"))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	e := New(testLogger())

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := NewInstanceID()
			if e.Acquire(id) {
				wins <- id
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	assert.Len(t, winners, 1)
	assert.Equal(t, winners[0], e.Holder())
}
