package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recordingHuman(seed int64) (*HumanSimulator, *[]time.Duration) {
	var slept []time.Duration
	h := &HumanSimulator{
		rng:          rand.New(rand.NewSource(seed)),
		sleep:        func(d time.Duration) { slept = append(slept, d) },
		humanizeProb: 0.7,
	}
	return h, &slept
}

func TestBetweenBounds(t *testing.T) {
	h, _ := recordingHuman(1)

	for i := 0; i < 1000; i++ {
		d := h.between(100*time.Millisecond, 300*time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}
	assert.Equal(t, time.Second, h.between(time.Second, time.Second))
}

func TestThinkUsesBucketRange(t *testing.T) {
	h, slept := recordingHuman(2)

	h.Think("decision")
	assert.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], 1000*time.Millisecond)
	assert.Less(t, (*slept)[0], 2500*time.Millisecond)
}

func TestThinkUnknownBucketFallsBack(t *testing.T) {
	h, slept := recordingHuman(3)

	h.Think("no_such_bucket")
	assert.Len(t, *slept, 1)
	assert.GreaterOrEqual(t, (*slept)[0], 300*time.Millisecond)
	assert.Less(t, (*slept)[0], 800*time.Millisecond)
}

func TestRandomBreakNeverExceedsCeiling(t *testing.T) {
	h, slept := recordingHuman(4)

	for i := 0; i < 200; i++ {
		h.RandomBreak()
	}
	for _, d := range *slept {
		assert.LessOrEqual(t, d, 8*time.Second)
	}
}

func TestReadingPauseClamped(t *testing.T) {
	h, _ := recordingHuman(5)

	// Even a huge page stays within the clamp plus jitter.
	assert.LessOrEqual(t, h.readingPause(100000), 9*time.Second)
	assert.GreaterOrEqual(t, h.readingPause(0), 500*time.Millisecond)
}

func TestGesturesOnNilPageAreNoOps(t *testing.T) {
	h, slept := recordingHuman(6)

	assert.NotPanics(t, func() {
		h.MoveMouse(nil, 0, 0, 100, 100)
		h.ReadPage(nil)
		assert.NoError(t, h.Click(nil, nil))
		assert.NoError(t, h.Type(nil, nil, "hello"))
	})
	assert.Empty(t, *slept)
}

func TestShouldHumanizeHonorsProbability(t *testing.T) {
	h, _ := recordingHuman(7)
	h.humanizeProb = 0

	for i := 0; i < 50; i++ {
		assert.False(t, h.ShouldHumanize())
	}

	h.humanizeProb = 1
	for i := 0; i < 50; i++ {
		assert.True(t, h.ShouldHumanize())
	}
}
