package orchestrator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottleLeadingEdgeRunsImmediately(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(50*time.Millisecond, func() { calls.Add(1) })
	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())
}

func TestThrottleCoalescesTrailingCallsIntoOne(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(30*time.Millisecond, func() { calls.Add(1) })
	th.Trigger()
	th.Trigger()
	th.Trigger()
	th.Trigger()
	assert.Equal(t, int32(1), calls.Load())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestThrottleStopCancelsTrailing(t *testing.T) {
	var calls atomic.Int32
	th := NewThrottle(30*time.Millisecond, func() { calls.Add(1) })
	th.Trigger()
	th.Trigger()
	th.Stop()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
