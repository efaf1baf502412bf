package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelStream_Selector(t *testing.T) {
	stream := NewChannelStream[int, string]("evens", 4, func(v int) (string, bool) {
		if v%2 != 0 {
			return "", false
		}
		return "even", true
	})

	require.Equal(t, "evens", stream.ID())
	require.NoError(t, stream.Notify(1, time.Second))
	require.NoError(t, stream.Notify(2, time.Second))

	require.Equal(t, "even", <-stream.Channel())
	require.Empty(t, stream.Channel())
}

func TestChannelStream_Close(t *testing.T) {
	stream := NewChannelStream[int, int]("s", 1, func(v int) (int, bool) { return v, true })

	stream.Close()
	stream.Close()

	require.ErrorIs(t, stream.Notify(1, time.Second), ErrStreamClosed)
	_, ok := <-stream.Channel()
	require.False(t, ok)
}

func TestChannelStream_Timeout(t *testing.T) {
	stream := NewChannelStream[int, int]("s", 1, func(v int) (int, bool) { return v, true })

	require.NoError(t, stream.Notify(1, time.Second))
	require.Error(t, stream.Notify(2, 10*time.Millisecond))
	require.ErrorIs(t, stream.Notify(3, time.Second), ErrStreamClosed)
}
