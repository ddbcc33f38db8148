// Package events carries state change notifications from modules to the core.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type Type string

const (
	// RolesChanged asks the core to reload the role map of GuildID.
	RolesChanged Type = "roles_changed"
	// BlacklistChanged carries the complete blacklist in UserIDs.
	BlacklistChanged Type = "blacklist_changed"
	// RefreshCommands asks for a slash command sync of GuildID, all guilds when empty.
	RefreshCommands Type = "refresh_commands"
)

type Event struct {
	Type    Type
	GuildID string
	UserIDs []string
}

type Handler func(Event)

// Bus is a fan-out of events to subscribers. Handlers run on the goroutine
// of Run, one event at a time.
//
// State events (RolesChanged, BlacklistChanged) are never dropped: pending
// ones are coalesced, one per guild for roles and only the latest list for
// the blacklist. RefreshCommands goes through a bounded buffer.
type Bus struct {
	ch       chan Event
	mu       sync.RWMutex
	handlers []Handler
	log      zerolog.Logger

	pendingMu sync.Mutex
	pending   []Event
	wake      chan struct{}
}

func NewBus(size int, log zerolog.Logger) *Bus {
	if size <= 0 {
		size = 256
	}
	return &Bus{
		ch:   make(chan Event, size),
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish queues evt without blocking. A RefreshCommands event is dropped
// when the buffer is full; state events are always kept.
func (b *Bus) Publish(evt Event) {
	if evt.Type == RolesChanged || evt.Type == BlacklistChanged {
		b.queue(evt)
		return
	}
	select {
	case b.ch <- evt:
	default:
		b.log.Warn().Str("type", string(evt.Type)).Str("guild", evt.GuildID).Msg("Event bus full, dropping event")
	}
}

func (b *Bus) queue(evt Event) {
	b.pendingMu.Lock()
	merged := false
	for i, p := range b.pending {
		if p.Type != evt.Type {
			continue
		}
		if evt.Type == BlacklistChanged {
			b.pending[i] = evt
			merged = true
			break
		}
		if p.GuildID == evt.GuildID {
			merged = true
			break
		}
	}
	if !merged {
		b.pending = append(b.pending, evt)
	}
	b.pendingMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) takePending() []Event {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Run delivers queued events until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-b.wake:
			for _, evt := range b.takePending() {
				b.Dispatch(evt)
			}
		case evt := <-b.ch:
			b.Dispatch(evt)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch delivers evt synchronously to every subscriber.
func (b *Bus) Dispatch(evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, evt)
	}
}

func (b *Bus) safeCall(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("type", string(evt.Type)).Msg("Event handler panicked")
		}
	}()
	h(evt)
}
