package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/persistence"
)

// Manager tracks the running actors.
type Manager struct {
	opts Options

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	opts.defaults()
	return &Manager{opts: opts, actors: make(map[string]*Actor)}
}

// CreateOptions configures a new session.
type CreateOptions struct {
	UserID       string            `json:"userId,omitempty"`
	AccessTokens map[string]string `json:"accessTokens,omitempty"`
}

// Info describes a known session.
type Info struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Create starts a new session. A user id authenticates it right away.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Actor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state := machine.Initial(uuid.NewString(), strings.ToLower(ulid.Make().String()))
	if len(opts.AccessTokens) > 0 {
		state.Context.AccessTokens = opts.AccessTokens
	}

	a := newActor(state, m.opts)
	m.mu.Lock()
	m.actors[a.ID()] = a
	m.mu.Unlock()

	if opts.UserID != "" {
		if err := a.Send(event.Event{Type: event.Authenticate, UserID: opts.UserID}); err != nil {
			return nil, err
		}
	}
	logging.Info().Str("sessionID", a.ID()).Msg("session created")
	return a, nil
}

// Get returns a running actor, rehydrating a hibernated session if needed.
func (m *Manager) Get(ctx context.Context, id string) (*Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.actors[id]; ok {
		return a, nil
	}

	data, err := m.opts.Store.LoadSnapshot(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	state, err := machine.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("rehydrate %s: %w", id, err)
	}

	a := newActor(state, m.opts)
	m.actors[id] = a
	logging.Info().Str("sessionID", id).Msg("session rehydrated")
	return a, nil
}

// List returns running and hibernated sessions sorted by id.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	seen := map[string]bool{}
	m.mu.Lock()
	for id := range m.actors {
		seen[id] = true
	}
	m.mu.Unlock()

	stored, err := m.opts.Store.ListSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range stored {
		if _, ok := seen[id]; !ok {
			seen[id] = false
		}
	}

	out := make([]Info, 0, len(seen))
	for id, active := range seen {
		out = append(out, Info{ID: id, Active: active})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Remove hibernates a running session and forgets it.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	a, ok := m.actors[id]
	delete(m.actors, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.Stop(ctx)
}

// Close hibernates every running session.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.actors = make(map[string]*Actor)
	m.mu.Unlock()

	var errs []error
	for _, a := range actors {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", a.ID(), err))
		}
	}
	return errors.Join(errs...)
}
