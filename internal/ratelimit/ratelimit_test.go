package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darmiel/kartei/internal/core"
)

func TestPerCaller(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewPerCaller(1, 2)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Allow("s1"))
	require.NoError(t, l.Allow("s1"))

	err := l.Allow("s1")
	var limited *core.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, limited.RetryAfter, time.Second)

	// other callers are independent
	assert.NoError(t, l.Allow("s2"))

	// rejected attempts do not consume budget
	now = now.Add(time.Second)
	assert.NoError(t, l.Allow("s1"))
}

func TestNew(t *testing.T) {
	assert.IsType(t, Unlimited{}, New(0, 10))
	assert.IsType(t, &PerCaller{}, New(2, 0))

	u := New(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, u.Allow("s1"))
	}
}
