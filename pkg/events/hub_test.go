package events

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(CalibrationFailed, CalibrationFailedEvent{Source: "script", Error: "boom", Ts: 1})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Name != CalibrationFailed {
				t.Errorf("event name = %q", ev.Name)
			}
			p, err := DecodeAs[CalibrationFailedEvent](ev)
			if err != nil {
				t.Fatalf("DecodeAs() error = %v", err)
			}
			if p.Error != "boom" || p.Source != "script" {
				t.Errorf("payload = %+v", p)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	slow := h.Subscribe()
	defer h.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			h.Publish(AlertRaised, AlertRaisedEvent{Message: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if got := len(slow); got != subscriberBuffer {
		t.Errorf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if n := h.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestPublishOnNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(CalibrationUpdated, nil)
}

func TestDecodeAsEmpty(t *testing.T) {
	p, err := DecodeAs[AlertRaisedEvent](Event{Name: AlertRaised})
	if err != nil || p.Message != "" {
		t.Errorf("DecodeAs(empty) = %+v, %v", p, err)
	}
}
