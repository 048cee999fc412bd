package progress

import (
	"context"
	"sync"
	"time"
)

// Snapshot is the last-known waiting-screen state for one chat session.
type Snapshot struct {
	Visible   bool      `json:"visible"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board keeps a per-chat progress snapshot that HTTP clients can poll, and
// holds the cancel handle for the reconciliation run behind the overlay.
// Cancelling through the board both dismisses the snapshot and stops the
// run; the overlay never outlives its loop and the loop never outlives its
// overlay.
type Board struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot
	cancels map[string]boardCancel
	gen     uint64
}

type boardCancel struct {
	gen uint64
	fn  context.CancelFunc
}

func NewBoard() *Board {
	return &Board{
		entries: make(map[string]*Snapshot),
		cancels: make(map[string]boardCancel),
	}
}

// Signal returns the Signal implementation feeding the snapshot for chatID.
func (b *Board) Signal(chatID string) Signal {
	return boardSignal{board: b, chatID: chatID}
}

// Attach registers the cancel handle for the run currently shown to chatID
// and returns a detach func the run calls on its own termination. Detaching
// removes only this registration; a newer run's handle stays in place.
func (b *Board) Attach(chatID string, cancel context.CancelFunc) (detach func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	gen := b.gen
	b.cancels[chatID] = boardCancel{gen: gen, fn: cancel}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.cancels[chatID]; ok && cur.gen == gen {
			delete(b.cancels, chatID)
		}
	}
}

// Cancel stops the attached run, if any, and reports whether one existed.
// The snapshot is hidden by the run's own teardown.
func (b *Board) Cancel(chatID string) bool {
	b.mu.Lock()
	cancel, ok := b.cancels[chatID]
	delete(b.cancels, chatID)
	b.mu.Unlock()

	if !ok || cancel.fn == nil {
		return false
	}
	cancel.fn()
	return true
}

// Get returns the current snapshot for chatID.
func (b *Board) Get(chatID string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap, ok := b.entries[chatID]
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

func (b *Board) set(chatID string, visible bool, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.entries[chatID]
	if !ok {
		snap = &Snapshot{}
		b.entries[chatID] = snap
	}
	snap.Visible = visible
	if text != "" || visible {
		snap.Text = text
	}
	snap.UpdatedAt = time.Now()
}

type boardSignal struct {
	board  *Board
	chatID string
}

func (s boardSignal) Show(text string) { s.board.set(s.chatID, true, text) }

func (s boardSignal) Update(text string) {
	s.board.mu.Lock()
	defer s.board.mu.Unlock()
	snap, ok := s.board.entries[s.chatID]
	if !ok {
		snap = &Snapshot{Visible: true}
		s.board.entries[s.chatID] = snap
	}
	if text != "" {
		snap.Text = text
	}
	snap.UpdatedAt = time.Now()
}

func (s boardSignal) Hide() { s.board.set(s.chatID, false, "") }
