package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerDeliversToMatchingSubscribers(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	audio := b.Subscribe(AudioReady)
	all := b.Subscribe()

	b.Publish(ProcessingStarted, nil)
	b.Publish(AudioReady, AudioReadyPayload{OperationID: "op-1"})

	ev := <-audio
	assert.Equal(t, AudioReady, ev.Type)
	payload, ok := ev.Payload.(AudioReadyPayload)
	require.True(t, ok)
	assert.Equal(t, "op-1", payload.OperationID)

	first := <-all
	second := <-all
	assert.Equal(t, ProcessingStarted, first.Type)
	assert.Equal(t, AudioReady, second.Type)
	assert.Less(t, first.Seq, second.Seq)
}

func TestBrokerSequenceMatchesPublishOrder(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe(JobProgress)
	for i := 0; i < 5; i++ {
		b.Publish(JobProgress, JobProgressPayload{Message: "tick"})
	}

	var last uint64
	for i := 0; i < 5; i++ {
		ev := <-ch
		assert.Greater(t, ev.Seq, last)
		last = ev.Seq
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe(QueueCleared, SessionReset)
	b.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// publishing after unsubscribe must not panic
	b.Publish(QueueCleared, nil)
}

func TestBrokerSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch := b.Subscribe(JobProgress)
	for i := 0; i < 200; i++ {
		b.Publish(JobProgress, nil)
	}

	// the buffer bounds what a non-reading subscriber can hold
	assert.LessOrEqual(t, len(ch), 64)
}
