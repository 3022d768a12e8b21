package obsv

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpsFeed_PublishDeliversToSubscriber(t *testing.T) {
	feed := NewOpsFeed(zerolog.Nop())
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	feed.Publish(TransitionEvent{RevID: 1, Domain: "en.wikipedia.org", Status: "READY", Timestamp: time.Now()})

	select {
	case event := <-ch:
		assert.Equal(t, uint64(1), event.RevID)
		assert.Equal(t, "READY", event.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestOpsFeed_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	feed := NewOpsFeed(zerolog.Nop())
	feed.Publish(TransitionEvent{RevID: 2})
}

func TestOpsFeed_UnsubscribeStopsDelivery(t *testing.T) {
	feed := NewOpsFeed(zerolog.Nop())
	ch := feed.Subscribe()
	feed.Unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}
