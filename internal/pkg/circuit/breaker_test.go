package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b := New("ds", 2, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	assert.Equal(t, boom, b.Do(func() error { return boom }))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, boom, b.Do(func() error { return boom }))
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	b := New("ds", 1, time.Second)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_ZeroThresholdNeverOpens(t *testing.T) {
	b := New("ds", 0, time.Second)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "CLOSED", b.State().String())
}
