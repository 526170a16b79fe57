package hub

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New()
	first := h.Subscribe()
	second := h.Subscribe()

	h.Publish([]byte("hello"))

	for i, sub := range []*Subscriber{first, second} {
		select {
		case payload := <-sub.C():
			if string(payload) != "hello" {
				t.Errorf("subscriber %d: unexpected payload %q", i, payload)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no payload delivered", i)
		}
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe()

	for i := 0; i < 5; i++ {
		h.Publish([]byte(fmt.Sprintf("msg-%d", i)))
	}
	for i := 0; i < 5; i++ {
		payload := <-sub.C()
		if want := fmt.Sprintf("msg-%d", i); string(payload) != want {
			t.Fatalf("expected %q in order, got %q", want, payload)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := New()
	sub := h.Subscribe()

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	if h.Count() != 0 {
		t.Errorf("expected empty registry, got %d", h.Count())
	}
	if _, open := <-sub.C(); open {
		t.Error("expected subscriber channel closed")
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := New()
	slow := h.Subscribe()
	fast := h.Subscribe()

	// Nobody drains slow: overflow its buffer and keep going.
	for i := 0; i < sendBuffer*2; i++ {
		h.Publish([]byte("tick"))
	}

	delivered := 0
	for {
		select {
		case <-fast.C():
			delivered++
			continue
		default:
		}
		break
	}
	if delivered != sendBuffer {
		t.Errorf("fast subscriber should hold a full buffer, got %d", delivered)
	}
	if len(slow.send) != sendBuffer {
		t.Errorf("slow subscriber buffer should be full, got %d", len(slow.send))
	}
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	h := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := h.Subscribe()
				h.Publish([]byte("x"))
				h.Unsubscribe(sub)
			}
		}()
	}
	wg.Wait()

	if h.Count() != 0 {
		t.Errorf("expected empty registry after churn, got %d", h.Count())
	}
}
