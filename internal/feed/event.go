// Package feed fans board changes out to live subscribers.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics a client can follow. TopicAll receives both.
const (
	TopicFunctionalities = "functionalities"
	TopicChangeLog       = "changelog"
	TopicAll             = "*"
)

func ValidTopic(topic string) bool {
	switch topic {
	case TopicFunctionalities, TopicChangeLog, TopicAll:
		return true
	}
	return false
}

// Topics expands a subscription topic into the concrete topics it covers.
func Topics(topic string) []string {
	if topic == TopicAll {
		return []string{TopicFunctionalities, TopicChangeLog}
	}
	return []string{topic}
}

type EventType string

const (
	EventFunctionalityCreated EventType = "functionality.created"
	EventFunctionalityMoved   EventType = "functionality.moved"
	EventChangeLogAppended    EventType = "changelog.appended"
)

// Event is a committed change. Origin identifies the publishing instance so
// relayed events are not echoed back.
type Event struct {
	Type   EventType       `json:"type"`
	Topic  string          `json:"topic"`
	Data   json.RawMessage `json:"data"`
	Time   time.Time       `json:"time"`
	Origin string          `json:"origin,omitempty"`
}

func NewEvent(eventType EventType, topic string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return Event{Type: eventType, Topic: topic, Data: raw, Time: time.Now().UTC()}, nil
}
