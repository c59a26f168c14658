package bucketcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIOErrorControllerDisablesAfterSustainedFailures(t *testing.T) {
	c := newIOErrorController(time.Minute)
	start := time.Now()

	require.False(t, c.RecordFailure(start))
	require.False(t, c.Disabled())

	require.False(t, c.RecordFailure(start.Add(30*time.Second)))
	require.False(t, c.Disabled())

	require.True(t, c.RecordFailure(start.Add(61*time.Second)))
	require.True(t, c.Disabled())
}

func TestIOErrorControllerSuccessResetsStreak(t *testing.T) {
	c := newIOErrorController(time.Minute)
	start := time.Now()

	require.False(t, c.RecordFailure(start))
	c.RecordSuccess()

	// A failure long after firstFail, but after a success, restarts the
	// window instead of tripping immediately.
	require.False(t, c.RecordFailure(start.Add(90*time.Second)))
	require.False(t, c.Disabled())
}

func TestIOErrorControllerDisableIsSticky(t *testing.T) {
	c := newIOErrorController(time.Second)
	start := time.Now()

	require.False(t, c.RecordFailure(start))
	require.True(t, c.RecordFailure(start.Add(2*time.Second)))
	require.True(t, c.Disabled())

	// Further failures after disabling don't re-trip (already disabled).
	require.False(t, c.RecordFailure(start.Add(3*time.Second)))
}

func TestIOErrorControllerReset(t *testing.T) {
	c := newIOErrorController(time.Second)
	start := time.Now()
	c.RecordFailure(start)
	c.RecordFailure(start.Add(2 * time.Second))
	require.True(t, c.Disabled())

	c.Reset()
	require.False(t, c.Disabled())
	require.False(t, c.RecordFailure(start.Add(3*time.Second)))
}
