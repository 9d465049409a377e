package assessment

import "testing"

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("a1")
	other := hub.Subscribe("a2")

	hub.Publish(ProgressEvent{AssessmentID: "a1", Processed: 1, Total: 3})

	select {
	case event := <-ch:
		if event.Processed != 1 || event.Total != 3 {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}

	select {
	case event := <-other:
		t.Fatalf("event leaked across assessments: %+v", event)
	default:
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("a1")
	hub.Unsubscribe("a1", ch)

	hub.Publish(ProgressEvent{AssessmentID: "a1", Processed: 1, Total: 1})

	select {
	case event := <-ch:
		t.Fatalf("unsubscribed channel received %+v", event)
	default:
	}
}

func TestHubDropsEventsForSlowSubscribers(t *testing.T) {
	hub := NewProgressHub()
	ch := hub.Subscribe("a1")

	// Channel buffer is 16; publishing past it must not block.
	for i := 0; i < 40; i++ {
		hub.Publish(ProgressEvent{AssessmentID: "a1", Processed: i + 1, Total: 40})
	}

	if got := len(ch); got != 16 {
		t.Fatalf("expected a full buffer of 16, got %d", got)
	}
}
