package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errUpstream = errors.New("upstream down")

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var transitions []string
	b := New(2, 1, time.Minute,
		WithClock(func() time.Time { return now }),
		WithStateChange(func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) }),
	)

	fail := func() error { return errUpstream }
	succeed := func() error { return nil }

	assert.ErrorIs(t, b.Execute(fail), errUpstream)
	assert.Equal(t, Closed, b.State())
	assert.ErrorIs(t, b.Execute(fail), errUpstream)
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, HalfOpen, b.State())
	assert.NoError(t, b.Execute(succeed))
	assert.Equal(t, Closed, b.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New(1, 1, time.Second, WithClock(func() time.Time { return now }))

	_ = b.Execute(func() error { return errUpstream })
	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errUpstream })
	assert.Equal(t, Open, b.State())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(2, 1, time.Minute)
	_ = b.Execute(func() error { return errUpstream })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errUpstream })
	assert.Equal(t, Closed, b.State())
}
