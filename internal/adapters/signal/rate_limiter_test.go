package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("alice"))
	}
	require.False(t, rl.Allow("alice"))

	// Limits are per connection.
	require.True(t, rl.Allow("bob"))
}

func TestJoinRateLimiterForgetsDepartedPeers(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	require.True(t, rl.Allow("alice"))
	require.False(t, rl.Allow("alice"))

	rl.Forget("alice")
	require.Len(t, rl.history, 0)
	require.True(t, rl.Allow("alice"))
}

func TestJoinRateLimiterWindowExpires(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Nanosecond)

	require.True(t, rl.Allow("alice"))
	time.Sleep(time.Millisecond)
	require.True(t, rl.Allow("alice"))
}
