package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rickgao/wsrelay/internal/connection"
)

func event(name, data string) connection.Event {
	return connection.Event{Name: name, Data: json.RawMessage(data)}
}

func TestRouter_ImplementsPublisher(t *testing.T) {
	var _ connection.Publisher = New(DefaultConfig(), nil)
}

func TestRouter_RoutesByName(t *testing.T) {
	r := New(Config{QueueSize: 4}, nil)
	defer r.Close()

	foo := r.Subscribe("foo")
	bar := r.Subscribe("bar")

	r.Publish(event("foo", `{"x":1}`))
	r.Publish(event("bar", `2`))
	r.Publish(event("foo", `3`))

	if foo.Len() != 2 {
		t.Errorf("foo.Len() = %d, want 2", foo.Len())
	}
	if bar.Len() != 1 {
		t.Errorf("bar.Len() = %d, want 1", bar.Len())
	}

	ev, ok := foo.TryReceive()
	if !ok {
		t.Fatal("TryReceive() returned false")
	}
	if string(ev.Data) != `{"x":1}` {
		t.Errorf("Data = %s, want {\"x\":1}", ev.Data)
	}
}

func TestRouter_Wildcard(t *testing.T) {
	r := New(DefaultConfig(), nil)
	defer r.Close()

	all := r.Subscribe(Wildcard)
	foo := r.Subscribe("foo")

	r.Publish(event("foo", `1`))
	r.Publish(event(connection.FallbackEvent, `"plain text"`))

	if all.Len() != 2 {
		t.Errorf("wildcard Len() = %d, want 2", all.Len())
	}
	if foo.Len() != 1 {
		t.Errorf("foo Len() = %d, want 1", foo.Len())
	}

	st := r.Stats()
	if st.Published != 2 {
		t.Errorf("Published = %d, want 2", st.Published)
	}
	if st.Delivered != 3 {
		t.Errorf("Delivered = %d, want 3", st.Delivered)
	}
	if st.Events["foo"] != 1 || st.Events[connection.FallbackEvent] != 1 {
		t.Errorf("Events = %v", st.Events)
	}
}

func TestRouter_Unrouted(t *testing.T) {
	r := New(DefaultConfig(), nil)
	defer r.Close()

	r.Subscribe("foo")
	r.Publish(event("nobody", `null`))

	st := r.Stats()
	if st.Unrouted != 1 {
		t.Errorf("Unrouted = %d, want 1", st.Unrouted)
	}
	if st.Delivered != 0 {
		t.Errorf("Delivered = %d, want 0", st.Delivered)
	}
}

func TestRouter_MultipleSubscribersSameName(t *testing.T) {
	r := New(DefaultConfig(), nil)
	defer r.Close()

	a := r.Subscribe("tick")
	b := r.Subscribe("tick")

	r.Publish(event("tick", `1`))

	if a.Len() != 1 || b.Len() != 1 {
		t.Errorf("a.Len()=%d b.Len()=%d, want 1/1", a.Len(), b.Len())
	}
}

func TestSubscription_Unsubscribe(t *testing.T) {
	r := New(DefaultConfig(), nil)
	defer r.Close()

	sub := r.Subscribe("foo")
	r.Publish(event("foo", `1`))
	sub.Unsubscribe()
	sub.Unsubscribe()

	r.Publish(event("foo", `2`))

	if sub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sub.Len())
	}
	if got := r.Stats().Subscriptions; got != 0 {
		t.Errorf("Subscriptions = %d, want 0", got)
	}
	if got := r.Stats().Unrouted; got != 1 {
		t.Errorf("Unrouted = %d, want 1", got)
	}
}

func TestSubscription_Receive(t *testing.T) {
	r := New(DefaultConfig(), nil)
	defer r.Close()

	sub := r.Subscribe("foo")

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.Publish(event("foo", `"hi"`))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, ok := sub.Receive(ctx)
	if !ok {
		t.Fatal("Receive() returned false")
	}
	if ev.Name != "foo" || string(ev.Data) != `"hi"` {
		t.Errorf("Receive() = %+v", ev)
	}
}

func TestSubscription_Handle(t *testing.T) {
	r := New(DefaultConfig(), nil)

	sub := r.Subscribe(Wildcard)
	for i := 0; i < 3; i++ {
		r.Publish(event("n", `0`))
	}
	r.Close()

	var n int
	sub.Handle(context.Background(), func(connection.Event) { n++ })

	if n != 3 {
		t.Errorf("handled %d events, want 3", n)
	}
}

func TestRouter_SubscribeAfterClose(t *testing.T) {
	r := New(DefaultConfig(), nil)
	r.Close()
	r.Close()

	sub := r.Subscribe("foo")
	r.Publish(event("foo", `1`))

	if _, ok := sub.Receive(context.Background()); ok {
		t.Error("Receive() on subscription to closed router returned true")
	}
}
