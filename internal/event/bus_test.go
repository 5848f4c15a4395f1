package event

import (
	"testing"
)

func TestSubscribeAndEmit(t *testing.T) {
	b := NewBus(nil)

	var got Payload
	_, err := b.Subscribe("p1", TopicWorkspaceChanged, func(p Payload) { got = p })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Emit(TopicWorkspaceChanged, Payload{"workspacePath": "/ws"})

	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got["workspacePath"] != "/ws" {
		t.Errorf("payload = %v", got)
	}
}

func TestThrowingHandlerDoesNotBlockOthers(t *testing.T) {
	b := NewBus(nil)

	calls := 0
	if _, err := b.Subscribe("angry", TopicWorkspaceChanged, func(Payload) {
		panic("boom")
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := b.Subscribe("calm", TopicWorkspaceChanged, func(Payload) {
		calls++
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b.Emit(TopicWorkspaceChanged, Payload{"workspacePath": "/ws"})

	if calls != 1 {
		t.Errorf("second handler invoked %d times, want 1", calls)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus(nil)

	calls := 0
	off, err := b.Subscribe("p1", TopicAppReady, func(Payload) { calls++ })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	off()
	off() // second call is a no-op

	b.Emit(TopicAppReady, nil)
	if calls != 0 {
		t.Errorf("handler invoked %d times after unsubscribe", calls)
	}
	if b.CountOwner("p1") != 0 {
		t.Error("subscription still tracked")
	}
}

func TestPurgeOwner(t *testing.T) {
	b := NewBus(nil)

	p1 := 0
	p2 := 0
	b.Subscribe("p1", TopicAppReady, func(Payload) { p1++ })
	b.Subscribe("p1", TopicActiveFileChanged, func(Payload) { p1++ })
	b.Subscribe("p2", TopicAppReady, func(Payload) { p2++ })

	if n := b.PurgeOwner("p1"); n != 2 {
		t.Errorf("PurgeOwner removed %d, want 2", n)
	}

	b.Emit(TopicAppReady, nil)
	b.Emit(TopicActiveFileChanged, nil)

	if p1 != 0 {
		t.Errorf("purged plugin handler ran %d times", p1)
	}
	if p2 != 1 {
		t.Errorf("surviving plugin handler ran %d times, want 1", p2)
	}
}

func TestSubscribeValidation(t *testing.T) {
	b := NewBus(nil)

	if _, err := b.Subscribe("p1", TopicAppReady, nil); err == nil {
		t.Error("nil handler should error")
	}
	if _, err := b.Subscribe("p1", "", func(Payload) {}); err == nil {
		t.Error("empty topic should error")
	}
}
