package feed_test

import (
	"testing"

	"github.com/NethermindEth/katana-go/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed(t *testing.T) {
	f := feed.New[int]()
	sub := f.SubscribeWithBuffer(1)

	f.Send(1)
	require.Equal(t, 1, <-sub.Recv())
	f.Send(2)
	require.Equal(t, 2, <-sub.Recv())

	sub.Unsubscribe()
	_, ok := <-sub.Recv()
	require.False(t, ok, "channel should be closed")
	assert.False(t, sub.Dropped())
	sub.Unsubscribe() // Unsubscribing twice is ok.
	f.Send(1)         // Sending without subscribers is ok.
}

func TestFeedDropsSlowSubscribers(t *testing.T) {
	f := feed.New[int]()
	slow := f.SubscribeWithBuffer(1)
	fast := f.SubscribeWithBuffer(2)
	assert.Less(t, slow.ID(), fast.ID())

	f.Send(1)
	f.Send(2)

	require.Equal(t, 1, <-slow.Recv())
	_, ok := <-slow.Recv()
	require.False(t, ok, "overflowing subscriber should be closed")
	assert.True(t, slow.Dropped())

	require.Equal(t, 1, <-fast.Recv())
	require.Equal(t, 2, <-fast.Recv())
	assert.False(t, fast.Dropped())
	assert.Equal(t, 1, f.Len())

	slow.Unsubscribe()
	fast.Unsubscribe()
	assert.Zero(t, f.Len())
}
