package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestDisabledNeverTrips(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestSuccessClearsFailures(t *testing.T) {
	cb := NewCircuitBreaker(true, 2, time.Minute, time.Minute)

	cb.RecordFailure()
	cb.RecordSuccess()
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestResetClosesCircuit(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, time.Hour)

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())
	assert.Equal(t, 0, cb.GetState().FailureCount)
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, 10*time.Millisecond)

	assert.True(t, cb.RecordFailure())
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen())
}
