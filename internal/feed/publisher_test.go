package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, eventType EventType, topic string, data any) Event {
	t.Helper()
	event, err := NewEvent(eventType, topic, data)
	require.NoError(t, err)
	return event
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryPublisherTopicAndGlobal(t *testing.T) {
	pub := NewMemoryPublisher()
	defer pub.Close()

	cards := pub.Subscribe(TopicFunctionalities)
	log := pub.Subscribe(TopicChangeLog)
	all := pub.Subscribe(TopicAll)

	pub.Publish(mustEvent(t, EventFunctionalityCreated, TopicFunctionalities, map[string]string{"id": "f-1"}))

	got := receive(t, cards)
	assert.Equal(t, EventFunctionalityCreated, got.Type)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Data, &payload))
	assert.Equal(t, "f-1", payload["id"])

	assert.Equal(t, EventFunctionalityCreated, receive(t, all).Type)
	select {
	case e := <-log:
		t.Fatalf("changelog subscriber got %v", e.Type)
	default:
	}
}

func TestMemoryPublisherDropsWhenBufferFull(t *testing.T) {
	pub := NewMemoryPublisher(WithBufferSize(1))
	defer pub.Close()
	ch := pub.Subscribe(TopicChangeLog)

	pub.Publish(mustEvent(t, EventChangeLogAppended, TopicChangeLog, 1))
	pub.Publish(mustEvent(t, EventChangeLogAppended, TopicChangeLog, 2))

	first := receive(t, ch)
	assert.JSONEq(t, "1", string(first.Data))
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %s", e.Data)
	default:
	}
}

func TestMemoryPublisherUnsubscribeAndClose(t *testing.T) {
	pub := NewMemoryPublisher()
	ch := pub.Subscribe(TopicFunctionalities)
	assert.Equal(t, 1, pub.SubscriberCount(TopicFunctionalities))

	pub.Unsubscribe(TopicFunctionalities, ch)
	assert.Equal(t, 0, pub.SubscriberCount(TopicFunctionalities))
	_, ok := <-ch
	assert.False(t, ok)

	other := pub.Subscribe(TopicAll)
	pub.Close()
	_, ok = <-other
	assert.False(t, ok)

	closed := pub.Subscribe(TopicAll)
	_, ok = <-closed
	assert.False(t, ok)
	pub.Publish(mustEvent(t, EventChangeLogAppended, TopicChangeLog, nil))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, []string{TopicFunctionalities, TopicChangeLog}, Topics(TopicAll))
	assert.Equal(t, []string{TopicChangeLog}, Topics(TopicChangeLog))
	assert.True(t, ValidTopic("*"))
	assert.False(t, ValidTopic("cards"))
}
