package session

import "testing"

func TestHubHoldsEventsUntilAttach(t *testing.T) {
	h := NewHub(2)
	h.Publish("a", nil)
	h.Publish("b", nil)
	h.Publish("c", nil)
	if waiting, dropped := h.Pending(); waiting != 2 || dropped != 1 {
		t.Fatalf("expected 2 waiting and 1 dropped, got %d and %d", waiting, dropped)
	}

	backlog, ch, detach := h.Attach()
	defer detach()
	if len(backlog) != 2 || backlog[0].Method != "b" || backlog[1].Method != "c" {
		t.Fatalf("unexpected backlog %+v", backlog)
	}
	if waiting, _ := h.Pending(); waiting != 0 {
		t.Fatalf("backlog must be handed over once, %d still waiting", waiting)
	}
	h.Publish("d", 1)
	ev := <-ch
	if ev.Method != "d" || ev.Seq != 4 {
		t.Fatalf("unexpected live event %+v", ev)
	}
}

func TestHubDetachesLaggingStreamAndKeepsOverflow(t *testing.T) {
	h := NewHub(8)
	_, ch, detach := h.Attach()
	defer detach()
	for i := 0; i < streamBuffer+1; i++ {
		h.Publish("flood", i)
	}
	n := 0
	for range ch {
		n++
	}
	if n != streamBuffer {
		t.Fatalf("expected %d buffered events before detach, got %d", streamBuffer, n)
	}

	backlog, next, detachNext := h.Attach()
	defer detachNext()
	if len(backlog) != 1 || backlog[0].Params != streamBuffer {
		t.Fatalf("overflowing event must wait for the next stream, got %+v", backlog)
	}
	h.Publish("after", nil)
	if ev := <-next; ev.Method != "after" {
		t.Fatalf("reattached stream must receive live events, got %+v", ev)
	}
}

func TestHubDetachIsIdempotentAndScoped(t *testing.T) {
	h := NewHub(4)
	_, first, detachFirst := h.Attach()
	_, second, detachSecond := h.Attach()
	if _, ok := <-first; ok {
		t.Fatal("a newer attach must close the previous stream")
	}
	detachFirst()
	h.Publish("x", nil)
	if ev := <-second; ev.Method != "x" {
		t.Fatalf("stale detach must not affect the current stream, got %+v", ev)
	}
	detachSecond()
	detachSecond()
	if _, ok := <-second; ok {
		t.Fatal("detached stream must be closed")
	}
}

func TestHubCloseEndsStream(t *testing.T) {
	h := NewHub(4)
	_, ch, detach := h.Attach()
	h.Close()
	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed")
	}
	detach()

	h.Publish("late", nil)
	backlog, late, _ := h.Attach()
	if len(backlog) != 0 {
		t.Fatalf("closed hub must not hold events, got %+v", backlog)
	}
	if _, ok := <-late; ok {
		t.Fatal("attach after close must return a closed channel")
	}
}

func TestWellFormedID(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	for _, ok := range []string{id, "abc", "x-1_2.3"} {
		if !WellFormedID(ok) {
			t.Fatalf("expected %q well-formed", ok)
		}
	}
	for _, bad := range []string{"", "a b", "tab\t", "ünicode", string(make([]byte, 129))} {
		if WellFormedID(bad) {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}
