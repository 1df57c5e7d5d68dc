package queue

import (
	"testing"
	"time"
)

func TestPopFrontEmptyQueue(t *testing.T) {
	q := New()
	if _, ok := q.PopFront(); ok {
		t.Fatal("expected no element from empty queue")
	}
}

func TestPopFrontImmediateDelivery(t *testing.T) {
	q := New()
	q.PushBack(NewElement([]byte("a"), false))
	elem, ok := q.PopFront()
	if !ok {
		t.Fatal("expected element")
	}
	if string(elem.Payload) != "a" {
		t.Fatalf("got %q", elem.Payload)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue drained, got len %d", q.Len())
	}
}

func TestPopFrontDefersUntilMinWait(t *testing.T) {
	q := New()
	e := Element{Payload: []byte("waits"), Received: time.Now(), NeedsToWait: true}
	q.PushBack(e)

	if _, ok := q.PopFront(); ok {
		t.Fatal("expected defer before min wait elapsed")
	}
	if q.Len() != 1 {
		t.Fatal("deferred element must remain queued")
	}

	q.elements.Front().Value = Element{
		Payload:     e.Payload,
		Received:    time.Now().Add(-MinWaitTime - time.Millisecond),
		NeedsToWait: true,
	}
	got, ok := q.PopFront()
	if !ok {
		t.Fatal("expected delivery once min wait elapsed")
	}
	if string(got.Payload) != "waits" {
		t.Fatalf("got %q", got.Payload)
	}
}

func TestPopFrontDropsExpiredElement(t *testing.T) {
	q := New()
	q.elements.PushBack(Element{
		Payload:  []byte("stale"),
		Received: time.Now().Add(-ElementLifetime - time.Second),
	})
	q.PushBack(NewElement([]byte("fresh"), false))

	got, ok := q.PopFront()
	if !ok {
		t.Fatal("expected the fresh element after the stale one is dropped")
	}
	if string(got.Payload) != "fresh" {
		t.Fatalf("got %q, want fresh", got.Payload)
	}
}

func TestPopFrontNeverSkipsDeferredElement(t *testing.T) {
	q := New()
	q.PushBack(Element{Payload: []byte("waiting"), Received: time.Now(), NeedsToWait: true})
	q.PushBack(NewElement([]byte("ready"), false))

	if _, ok := q.PopFront(); ok {
		t.Fatal("a deliverable second element must not be returned ahead of a deferred front element")
	}
	if q.Len() != 2 {
		t.Fatalf("both elements should remain queued, got len %d", q.Len())
	}
}

func TestMapPerDevEUIIsolation(t *testing.T) {
	m := NewMap()
	m.GetOrCreate("dev-1").PushBack(NewElement([]byte("one"), false))
	m.GetOrCreate("dev-2").PushBack(NewElement([]byte("two"), false))

	q1, _ := m.Get("dev-1")
	q2, _ := m.Get("dev-2")
	e1, _ := q1.PopFront()
	e2, _ := q2.PopFront()
	if string(e1.Payload) != "one" || string(e2.Payload) != "two" {
		t.Fatalf("queues bled into each other: %q %q", e1.Payload, e2.Payload)
	}
}
