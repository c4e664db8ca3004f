// Package event fans session events out to observers.
//
// Registrations are held by token. Publish snapshots the listeners of a kind
// and hands delivery to an Executor, so the publisher never runs observer
// code. Each observer call is isolated: a panic is logged and the remaining
// observers still run.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind names an event stream.
type Kind string

// Handler observes events of one kind.
type Handler func(payload any)

// Token identifies one registration.
type Token uint64

// On adapts a typed handler. Payloads of another type are ignored.
func On[T any](h func(T)) Handler {
	return func(payload any) {
		if v, ok := payload.(T); ok {
			h(v)
		}
	}
}

type registration struct {
	token   Token
	handler Handler
	scope   *Scope
	gen     uint64
}

func (r *registration) alive() bool {
	return r.scope == nil || r.scope.gen.Load() == r.gen
}

// Bus is a token-keyed observer registry.
type Bus struct {
	exec   Executor
	owned  *Queue
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[Kind][]*registration // replaced on every change, never mutated
	next Token
}

// NewBus creates a Bus delivering through exec. A nil exec gets a private
// Queue that Close stops.
func NewBus(exec Executor, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		exec:   exec,
		logger: logger,
		subs:   make(map[Kind][]*registration),
	}
	if exec == nil {
		b.owned = NewQueue(64, logger)
		b.exec = b.owned
	}
	return b
}

// Subscribe registers h for kind.
func (b *Bus) Subscribe(kind Kind, h Handler) Token {
	return b.add(kind, &registration{handler: h})
}

// Unsubscribe removes a registration. Returns false if it was not found.
func (b *Bus) Unsubscribe(kind Kind, token Token) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.subs[kind]
	for i, r := range cur {
		if r.token != token {
			continue
		}
		next := make([]*registration, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		b.setLocked(kind, next)
		return true
	}
	return false
}

// UnsubscribeAll removes every registration for the given kinds, or for
// every kind when none are given.
func (b *Bus) UnsubscribeAll(kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		b.subs = make(map[Kind][]*registration)
		return
	}
	for _, k := range kinds {
		delete(b.subs, k)
	}
}

// Count returns the number of live registrations for kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, r := range b.subs[kind] {
		if r.alive() {
			n++
		}
	}
	return n
}

// Publish delivers payload to the observers registered for kind at the
// moment of the call.
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	snapshot := b.subs[kind]
	b.mu.RUnlock()

	live := make([]*registration, 0, len(snapshot))
	for _, r := range snapshot {
		if r.alive() {
			live = append(live, r)
		}
	}
	if len(live) < len(snapshot) {
		b.prune(kind)
	}
	if len(live) == 0 {
		return
	}

	b.exec.Execute(func() {
		for _, r := range live {
			if r.alive() {
				b.deliver(kind, r, payload)
			}
		}
	})
}

// Prune drops registrations whose scope was closed. It returns the number
// removed.
func (b *Bus) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for kind := range b.subs {
		removed += b.pruneLocked(kind)
	}
	return removed
}

// NewScope creates a Scope bound to b.
func (b *Bus) NewScope() *Scope {
	return &Scope{bus: b}
}

// Close stops the private delivery queue, if any. Queued deliveries still
// run.
func (b *Bus) Close() {
	if b.owned != nil {
		b.owned.Close()
	}
}

func (b *Bus) add(kind Kind, r *registration) Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	r.token = b.next

	cur := b.subs[kind]
	next := make([]*registration, len(cur), len(cur)+1)
	copy(next, cur)
	b.subs[kind] = append(next, r)
	return r.token
}

func (b *Bus) prune(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(kind)
}

func (b *Bus) pruneLocked(kind Kind) int {
	cur := b.subs[kind]
	next := make([]*registration, 0, len(cur))
	for _, r := range cur {
		if r.alive() {
			next = append(next, r)
		}
	}
	b.setLocked(kind, next)
	return len(cur) - len(next)
}

func (b *Bus) setLocked(kind Kind, regs []*registration) {
	if len(regs) == 0 {
		delete(b.subs, kind)
		return
	}
	b.subs[kind] = regs
}

func (b *Bus) deliver(kind Kind, r *registration, payload any) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("event handler panicked", "kind", kind, "token", r.token, "panic", p)
		}
	}()
	r.handler(payload)
}

// Scope groups registrations owned by one observer. Close invalidates every
// registration made through the scope so far; the bus discards them lazily.
// The scope can be reused after Close.
type Scope struct {
	bus *Bus
	gen atomic.Uint64
}

// Subscribe registers h for kind under this scope.
func (s *Scope) Subscribe(kind Kind, h Handler) Token {
	return s.bus.add(kind, &registration{handler: h, scope: s, gen: s.gen.Load()})
}

// Close invalidates the scope's current registrations.
func (s *Scope) Close() {
	s.gen.Add(1)
}
