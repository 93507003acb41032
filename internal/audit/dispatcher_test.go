package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"
)

// blockingSink holds every Emit until released, to fill the dispatcher
// buffer deterministically.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Emit(_ context.Context, event Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNewDispatcherDisabledReturnsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}

	// Nil dispatchers are safe to use.
	var d *Dispatcher
	d.Emit(context.Background(), Event{Action: "noop"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, DropIfFull: true}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Action: "login_success", ActorID: "u1"})

	select {
	case event := <-sink.Events():
		if event.Action != "login_success" || event.ActorID != "u1" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDropsWhenBufferFull(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2, DropIfFull: true}, sink)

	// One event is consumed by the worker and parked in the sink; two more
	// fill the buffer; everything beyond that must be dropped, not block.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Action: "evt-" + strconv.Itoa(i)})
	}

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("no drops recorded with a full buffer")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(sink.release)
	d.Close()

	if got := int(d.Dropped()) + sink.count(); got != 10 {
		t.Fatalf("events lost without accounting: delivered+dropped = %d", got)
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16, DropIfFull: true}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Action: "evt-" + strconv.Itoa(i)})
	}
	d.Close()

	received := 0
	for received < 5 {
		select {
		case <-sink.Events():
			received++
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 5 events drained on close", received)
		}
	}

	// Emits after close are silently discarded.
	d.Emit(context.Background(), Event{Action: "late"})
	select {
	case event := <-sink.Events():
		t.Fatalf("event delivered after close: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJSONWriterSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{Action: "login_success", ActorID: "u1", Success: true})
	sink.Emit(context.Background(), Event{Action: "login_failure", Error: "invalid_credentials"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("line 1 not valid json: %v", err)
	}
	if first.Action != "login_success" || !first.Success {
		t.Fatalf("unexpected first event: %+v", first)
	}

	var second Event
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatalf("line 2 not valid json: %v", err)
	}
	if second.Error != "invalid_credentials" {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestConcurrentEmitNoRace(t *testing.T) {
	sink := NewChannelSink(1024)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1024, DropIfFull: true}, sink)

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.Emit(context.Background(), Event{Action: "evt", ActorID: strconv.Itoa(id)})
			}
		}(w)
	}
	wg.Wait()
	d.Close()
}
