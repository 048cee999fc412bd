// Package progress defines the narrow reporting contract the reconciliation
// loop uses to surface human-readable status while a payment resolves.
package progress

import "log"

// Signal is shown once when submission starts, updated on every poll cycle,
// and hidden exactly once on any terminal transition.
type Signal interface {
	Show(text string)
	Update(text string)
	Hide()
}

// NopSignal discards everything.
type NopSignal struct{}

func (NopSignal) Show(string)   {}
func (NopSignal) Update(string) {}
func (NopSignal) Hide()         {}

// LogSignal writes progress transitions to a logger. The dev-mode fallback
// when no richer sink is wired.
type LogSignal struct {
	Logger *log.Logger
}

func (s LogSignal) logf(format string, args ...any) {
	l := s.Logger
	if l == nil {
		l = log.Default()
	}
	l.Printf(format, args...)
}

func (s LogSignal) Show(text string)   { s.logf("[progress] show: %s", text) }
func (s LogSignal) Update(text string) { s.logf("[progress] update: %s", text) }
func (s LogSignal) Hide()              { s.logf("[progress] hide") }

// Multi fans every call out to each of its signals.
type Multi []Signal

func (m Multi) Show(text string) {
	for _, s := range m {
		s.Show(text)
	}
}

func (m Multi) Update(text string) {
	for _, s := range m {
		s.Update(text)
	}
}

func (m Multi) Hide() {
	for _, s := range m {
		s.Hide()
	}
}
