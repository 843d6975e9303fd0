package db

import (
	"bytes"
	"testing"
	"time"
)

func recvPayload(t *testing.T, sub *Subscription) []byte {
	t.Helper()
	select {
	case pay, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return pay
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishFanOut(t *testing.T) {
	d := newTestDB(t)

	a := d.Subscribe("ch")
	b := d.Subscribe("ch")
	defer d.Unsubscribe(a)
	defer d.Unsubscribe(b)

	n := d.Publish("ch", []byte("hello"))
	if n != 2 {
		t.Errorf("expected 2 receivers, got %d", n)
	}

	for _, sub := range []*Subscription{a, b} {
		if pay := recvPayload(t, sub); !bytes.Equal(pay, []byte("hello")) {
			t.Errorf("expected hello, got %s", pay)
		}
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := newTestDB(t)

	if n := d.Publish("empty", []byte("msg")); n != 0 {
		t.Errorf("expected 0 receivers, got %d", n)
	}
}

func TestPublishOrder(t *testing.T) {
	d := newTestDB(t)

	sub := d.Subscribe("ch")
	defer d.Unsubscribe(sub)

	for _, msg := range []string{"one", "two", "three"} {
		d.Publish("ch", []byte(msg))
	}

	for _, want := range []string{"one", "two", "three"} {
		if pay := recvPayload(t, sub); !bytes.Equal(pay, []byte(want)) {
			t.Errorf("expected %s, got %s", want, pay)
		}
	}
}

func TestSubscriberLag(t *testing.T) {
	d := newTestDB(t)

	sub := d.Subscribe("ch")
	defer d.Unsubscribe(sub)

	// overflow the buffer without receiving; publishers must not block
	total := SubscriptionBuffer + 10
	for i := 0; i < total; i++ {
		if n := d.Publish("ch", []byte("m")); n != 1 {
			t.Fatalf("expected 1 receiver, got %d", n)
		}
	}

	if dropped := sub.Dropped(); dropped != 10 {
		t.Errorf("expected 10 dropped messages, got %d", dropped)
	}
	// the counter resets on read
	if dropped := sub.Dropped(); dropped != 0 {
		t.Errorf("expected counter reset, got %d", dropped)
	}

	// the buffered messages are still deliverable
	for i := 0; i < SubscriptionBuffer; i++ {
		recvPayload(t, sub)
	}
	select {
	case <-sub.C():
		t.Error("received more messages than the buffer holds")
	default:
	}
}

func TestUnsubscribeClosesStream(t *testing.T) {
	d := newTestDB(t)

	sub := d.Subscribe("ch")
	d.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Error("expected closed stream after unsubscribe")
	}

	// repeated unsubscribe is harmless
	d.Unsubscribe(sub)
}

func TestEmptyBusIsCollected(t *testing.T) {
	d := newTestDB(t)

	a := d.Subscribe("ch")
	b := d.Subscribe("ch")

	d.Unsubscribe(a)
	if d.Stats().Channels != 1 {
		t.Error("bus removed while a subscriber remains")
	}

	d.Unsubscribe(b)
	if d.Stats().Channels != 0 {
		t.Error("bus not removed after last unsubscribe")
	}
}

func TestPublishCountsLaggedReceivers(t *testing.T) {
	d := newTestDB(t)

	sub := d.Subscribe("ch")
	defer d.Unsubscribe(sub)

	for i := 0; i < SubscriptionBuffer; i++ {
		d.Publish("ch", []byte("fill"))
	}

	// a full buffer still counts as a registered receiver
	if n := d.Publish("ch", []byte("over")); n != 1 {
		t.Errorf("expected lagged receiver to be counted, got %d", n)
	}
}
