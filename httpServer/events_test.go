package httpServer

import (
	"sync"
	"testing"

	"rapidcast/internal/notify"
)

// subscribe registers a subscriber with no websocket behind it.
func subscribe(b *Broadcaster) *eventClient {
	c := &eventClient{send: make(chan []byte, eventQueueSize)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

func TestNotifyConcurrentWithUnsubscribe(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	n := notify.New(notify.EventClientConnected, "s1", "127.0.0.1:5000")

	for i := 0; i < 500; i++ {
		c := subscribe(b)
		other := subscribe(b)

		var wg sync.WaitGroup
		for g := 0; g < 16; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Notify(n)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.remove(c)
		}()
		wg.Wait()

		b.remove(other)
	}

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestNotifyConcurrentWithClose(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	for i := 0; i < 8; i++ {
		subscribe(b)
	}
	n := notify.New(notify.EventAwaitingClient, "s1", "")

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Notify(n)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Close()
	}()
	wg.Wait()

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster(quietLogger())
	c := subscribe(b)
	n := notify.New(notify.EventServerStarted, "s1", "")

	for i := 0; i <= eventQueueSize; i++ {
		b.Notify(n)
	}

	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d, want 0", got)
	}
	count := 0
	for range c.send {
		count++
	}
	if count != eventQueueSize {
		t.Errorf("queued %d events, want %d", count, eventQueueSize)
	}
}
