package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	eventBus := NewEventBus()

	subscriber := make(chan Event, 1)
	eventBus.Subscribe("epoch_completed", subscriber)

	eventBus.Publish(Event{
		Type:      "epoch_completed",
		Timestamp: time.Now(),
		Data:      EpochCompletedEvent{ModuleId: "m1", Epoch: 3, MeanReward: 1.5},
	})

	select {
	case event := <-subscriber:
		payload, ok := event.Data.(EpochCompletedEvent)
		if !ok {
			t.Fatalf("Unexpected payload type %T", event.Data)
		}
		if payload.Epoch != 3 || payload.ModuleId != "m1" {
			t.Errorf("Unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("Subscriber never received the event")
	}
}

func TestPublishIgnoresOtherEventTypes(t *testing.T) {
	eventBus := NewEventBus()

	subscriber := make(chan Event, 1)
	eventBus.Subscribe("training_finished", subscriber)

	eventBus.Publish(Event{Type: "epoch_completed", Timestamp: time.Now()})

	select {
	case event := <-subscriber:
		t.Errorf("Subscriber received an event of the wrong type: %+v", event)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	eventBus := NewEventBus()

	subscriber := make(chan Event, 2)
	eventBus.Subscribe("epoch_completed", subscriber)
	eventBus.Unsubscribe("epoch_completed", subscriber)

	eventBus.Publish(Event{Type: "epoch_completed", Timestamp: time.Now()})

	select {
	case event := <-subscriber:
		t.Errorf("Unsubscribed channel received an event: %+v", event)
	default:
	}
}
