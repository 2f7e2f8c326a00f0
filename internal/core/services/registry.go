package services

import (
	"fmt"
	"sort"
	"sync"

	"meeting-copilot/internal/core/domain"
)

// Registry is the process-wide table of bots. Claims are atomic per
// session id: at most one non-terminal bot holds a session.
type Registry interface {
	// Claim inserts b, evicting a terminal bot for the same session. It
	// fails with domain.ErrConflict while a live bot holds the session.
	Claim(b *Bot) error
	Get(botID string) (*Bot, bool)
	// Release removes the bot; unknown ids are ignored.
	Release(botID string)
	List() []*Bot
}

type memoryRegistry struct {
	mu        sync.Mutex
	bots      map[string]*Bot
	bySession map[string]string
}

func NewMemoryRegistry() Registry {
	return &memoryRegistry{
		bots:      make(map[string]*Bot),
		bySession: make(map[string]string),
	}
}

func (r *memoryRegistry) Claim(b *Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.bySession[b.sessionID]; ok {
		if existing := r.bots[id]; existing != nil && !existing.State().Terminal() {
			return fmt.Errorf("session %s already has bot %s: %w", b.sessionID, id, domain.ErrConflict)
		}
		delete(r.bots, id)
	}
	r.bots[b.id] = b
	r.bySession[b.sessionID] = b.id
	return nil
}

func (r *memoryRegistry) Get(botID string) (*Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[botID]
	return b, ok
}

func (r *memoryRegistry) Release(botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[botID]
	if !ok {
		return
	}
	delete(r.bots, botID)
	if r.bySession[b.sessionID] == botID {
		delete(r.bySession, b.sessionID)
	}
}

func (r *memoryRegistry) List() []*Bot {
	r.mu.Lock()
	out := make([]*Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.Before(out[j].createdAt) })
	return out
}
