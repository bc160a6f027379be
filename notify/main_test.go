package notify

import "testing"

func TestMultiplexer(t *testing.T) {
	m := NewMultiplexer[int]("test")
	a := make(chan int, 4)
	b := make(chan int, 1)
	m.Subscribe("a", a)
	m.Subscribe("b", b)
	m.Send(1)
	m.Send(2)
	if got := <-a; got != 1 {
		t.Fatalf("a: expected 1, got %d", got)
	}
	if got := <-a; got != 2 {
		t.Fatalf("a: expected 2, got %d", got)
	}
	// b only had room for the first value
	if got := <-b; got != 1 {
		t.Fatalf("b: expected 1, got %d", got)
	}
	select {
	case v := <-b:
		t.Fatalf("b: unexpected value %d", v)
	default:
	}

	m.Unsubscribe(b)
	if m.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", m.Len())
	}
	m.Send(3)
	if got := <-a; got != 3 {
		t.Fatalf("a: expected 3, got %d", got)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	m := NewMultiplexer[int]("test")
	c := make(chan int)
	m.Subscribe("c", c)
	m.Unsubscribe(c)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	m.Unsubscribe(c)
}
