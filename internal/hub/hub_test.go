package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeSender struct {
	mu     sync.Mutex
	got    [][]byte
	fail   bool
	closed bool
	onSend func()
}

func (f *fakeSender) Send(msg []byte) error {
	if f.onSend != nil {
		f.onSend()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("connection reset")
	}
	f.got = append(f.got, msg)
	return nil
}

func (f *fakeSender) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSender) messages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestBroadcastDeliversToAll(t *testing.T) {
	h := New(zerolog.Nop())
	a, b := &fakeSender{}, &fakeSender{}
	h.Subscribe(a)
	h.Subscribe(b)

	if n := h.Broadcast([]byte("hello")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if a.messages() != 1 || b.messages() != 1 {
		t.Fatal("expected each subscriber to receive the message")
	}
}

func TestBroadcastDropsFailingSubscriber(t *testing.T) {
	h := New(zerolog.Nop())
	good1, bad, good2 := &fakeSender{}, &fakeSender{fail: true}, &fakeSender{}
	h.Subscribe(good1)
	h.Subscribe(bad)
	h.Subscribe(good2)

	if n := h.Broadcast([]byte("alert")); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if h.Count() != 2 {
		t.Fatalf("expected failing subscriber removed, count=%d", h.Count())
	}
	if !bad.closed {
		t.Fatal("expected removed subscriber to be closed")
	}
	if good1.messages() != 1 || good2.messages() != 1 {
		t.Fatal("remaining subscribers missed the broadcast")
	}
}

func TestDisconnectDuringBroadcast(t *testing.T) {
	h := New(zerolog.Nop())
	subs := []*fakeSender{{}, {}, {}}
	handles := make([]Handle, len(subs))
	for i, s := range subs {
		handles[i] = h.Subscribe(s)
	}

	// the first sender to be called disconnects one of its peers
	var once sync.Once
	victim := -1
	for i := range subs {
		i := i
		subs[i].onSend = func() {
			once.Do(func() {
				victim = (i + 1) % len(subs)
				h.Unsubscribe(handles[victim])
			})
		}
	}

	delivered := h.Broadcast([]byte("alert"))
	if delivered != 2 {
		t.Fatalf("expected delivery to the 2 remaining subscribers, got %d", delivered)
	}
	if h.Count() != 2 {
		t.Fatalf("expected 2 subscribers left, got %d", h.Count())
	}
	for i, s := range subs {
		if i == victim {
			continue
		}
		if s.messages() != 1 {
			t.Fatalf("subscriber %d missed the broadcast", i)
		}
	}
}

func TestUnsubscribeUnknownHandle(t *testing.T) {
	h := New(zerolog.Nop())
	h.Unsubscribe(42)
	if h.Count() != 0 {
		t.Fatal("expected empty hub")
	}
}

func TestCloseRejectsNewSubscribers(t *testing.T) {
	h := New(zerolog.Nop())
	first := &fakeSender{}
	h.Subscribe(first)
	h.Close()

	if !first.closed || h.Count() != 0 {
		t.Fatal("expected existing subscribers closed")
	}
	late := &fakeSender{}
	if id := h.Subscribe(late); id != 0 || !late.closed {
		t.Fatal("expected subscription refused after close")
	}
}

func TestConcurrentBroadcastAndChurn(t *testing.T) {
	h := New(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := h.Subscribe(&fakeSender{})
				h.Unsubscribe(id)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Broadcast([]byte("x"))
			}
		}()
	}
	wg.Wait()
	if h.Count() != 0 {
		t.Fatalf("expected no subscribers left, got %d", h.Count())
	}
}
