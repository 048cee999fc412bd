package progress

import (
	"context"
	"testing"
)

func TestBoardSignalLifecycle(t *testing.T) {
	b := NewBoard()
	sig := b.Signal("chat-1")

	if _, ok := b.Get("chat-1"); ok {
		t.Fatal("snapshot should not exist before Show")
	}

	sig.Show("Создаём заказ...")
	snap, ok := b.Get("chat-1")
	if !ok || !snap.Visible || snap.Text != "Создаём заказ..." {
		t.Fatalf("after Show: %+v ok=%v", snap, ok)
	}

	sig.Update("Ожидаем оплату...")
	snap, _ = b.Get("chat-1")
	if snap.Text != "Ожидаем оплату..." || !snap.Visible {
		t.Fatalf("after Update: %+v", snap)
	}

	sig.Hide()
	snap, _ = b.Get("chat-1")
	if snap.Visible {
		t.Fatalf("after Hide: %+v", snap)
	}
}

func TestBoardUpdateKeepsTextOnEmpty(t *testing.T) {
	b := NewBoard()
	sig := b.Signal("chat-1")
	sig.Show("Ожидаем оплату...")
	sig.Update("")
	snap, _ := b.Get("chat-1")
	if snap.Text != "Ожидаем оплату..." {
		t.Fatalf("empty update overwrote text: %+v", snap)
	}
}

func TestBoardChatsAreIsolated(t *testing.T) {
	b := NewBoard()
	b.Signal("chat-1").Show("a")
	b.Signal("chat-2").Show("b")

	snap, _ := b.Get("chat-1")
	if snap.Text != "a" {
		t.Fatalf("chat-1 snapshot: %+v", snap)
	}
	snap, _ = b.Get("chat-2")
	if snap.Text != "b" {
		t.Fatalf("chat-2 snapshot: %+v", snap)
	}
}

func TestBoardCancel(t *testing.T) {
	b := NewBoard()

	if b.Cancel("chat-1") {
		t.Fatal("cancel with nothing attached should report false")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.Attach("chat-1", cancel)

	if !b.Cancel("chat-1") {
		t.Fatal("cancel with an attached run should report true")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("attached context was not cancelled")
	}

	if b.Cancel("chat-1") {
		t.Fatal("second cancel should report false")
	}
}

func TestBoardDetachAfterRunFinishes(t *testing.T) {
	b := NewBoard()

	ctx, cancel := context.WithCancel(context.Background())
	detach := b.Attach("chat-1", cancel)

	// The run terminated on its own; a later cancel has nothing to stop.
	detach()
	if b.Cancel("chat-1") {
		t.Fatal("cancel after detach should report false")
	}
	select {
	case <-ctx.Done():
		t.Fatal("detach must not cancel the context")
	default:
	}
}

func TestBoardDetachKeepsNewerAttachment(t *testing.T) {
	b := NewBoard()

	_, cancelOld := context.WithCancel(context.Background())
	detachOld := b.Attach("chat-1", cancelOld)

	ctxNew, cancelNew := context.WithCancel(context.Background())
	b.Attach("chat-1", cancelNew)

	// The old run's teardown races the new attachment; it must not
	// unregister the newer handle.
	detachOld()
	if !b.Cancel("chat-1") {
		t.Fatal("newer attachment should still be cancellable")
	}
	select {
	case <-ctxNew.Done():
	default:
		t.Fatal("newer context was not cancelled")
	}
	cancelOld()
}

func TestMultiFansOut(t *testing.T) {
	b := NewBoard()
	m := Multi{b.Signal("chat-1"), b.Signal("chat-2")}
	m.Show("x")

	for _, chat := range []string{"chat-1", "chat-2"} {
		snap, ok := b.Get(chat)
		if !ok || snap.Text != "x" {
			t.Fatalf("%s snapshot: %+v ok=%v", chat, snap, ok)
		}
	}
}
