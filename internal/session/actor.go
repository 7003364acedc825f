package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/patch"
	"github.com/kitchenai/kitchen/internal/persistence"
)

// DefaultQueueSize is the inbox capacity of an actor.
const DefaultQueueSize = 256

var (
	// ErrWaitTimeout is returned by WaitFor when the state does not match in time.
	ErrWaitTimeout = errors.New("timed out waiting for session state")
	// ErrStopped is returned when sending to a stopped actor.
	ErrStopped = errors.New("session stopped")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
)

// Tasks starts generation tasks.
type Tasks interface {
	Start(ctx context.Context, req generation.Request, emit generation.Emit)
}

// Options are the dependencies shared by every actor.
type Options struct {
	Machine *machine.Machine
	Tasks   Tasks
	Store   persistence.Actors
	Bus     *event.Bus

	QueueSize int
	// PersistTimeout bounds a single persistence call.
	PersistTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type message struct {
	ev    event.Event
	reply chan error
}

// Actor runs one session.
type Actor struct {
	id   string
	opts Options
	prop *patch.Propagator
	log  zerolog.Logger

	inbox    chan message
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	stopErr  error

	// ctx parents every task and persistence call.
	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup

	mu    sync.RWMutex
	state machine.State

	// Only touched by the loop goroutine.
	tasks  map[string]context.CancelFunc
	timers map[string]*time.Timer

	watchMu  sync.Mutex
	watchers map[chan struct{}]struct{}
}

func newActor(state machine.State, opts Options) *Actor {
	opts.defaults()
	id := state.Context.SessionID
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		id:       id,
		opts:     opts,
		prop:     patch.NewPropagator(id),
		log:      logging.ForSession(id),
		inbox:    make(chan message, opts.QueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		state:    state,
		tasks:    make(map[string]context.CancelFunc),
		timers:   make(map[string]*time.Timer),
		watchers: make(map[chan struct{}]struct{}),
	}
	if _, _, err := a.prop.Next(state); err != nil {
		a.log.Error().Err(err).Msg("failed to encode initial snapshot")
	}
	go a.loop()
	return a
}

// ID returns the session id.
func (a *Actor) ID() string { return a.id }

// Snapshot returns a copy of the current state.
func (a *Actor) Snapshot() machine.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.Clone()
}

// Send queues an event and returns without waiting for it to be processed.
func (a *Actor) Send(ev event.Event) error {
	return a.enqueue(message{ev: ev})
}

// Dispatch queues an event and waits for its transition. A rejected
// transition returns the machine's error.
func (a *Actor) Dispatch(ctx context.Context, ev event.Event) error {
	reply := make(chan error, 1)
	if err := a.enqueue(message{ev: ev, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) enqueue(msg message) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- msg:
		return nil
	case <-a.done:
		return ErrStopped
	}
}

// post is how tasks, timers and persistence calls report back.
func (a *Actor) post(ev event.Event) {
	if err := a.Send(ev); err != nil && !errors.Is(err, ErrStopped) {
		a.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("failed to post event")
	}
}

// Subscribe registers fn for every update published after the call and
// returns a full snapshot update to start from. Updates with a sequence
// number not above the snapshot's are already contained in it.
func (a *Actor) Subscribe(fn func(event.Update)) (event.Update, func()) {
	unsubscribe := a.opts.Bus.Subscribe(event.Topic(a.id), func(env event.Envelope) {
		var u event.Update
		if err := env.Decode(&u); err != nil {
			a.log.Error().Err(err).Msg("failed to decode session update")
			return
		}
		fn(u)
	})
	return a.prop.Full(), unsubscribe
}

// WaitFor blocks until pred holds for the session state, the timeout elapses
// (ErrWaitTimeout), ctx is done or the actor stops.
func (a *Actor) WaitFor(ctx context.Context, pred func(machine.State) bool, timeout time.Duration) (machine.State, error) {
	ch := make(chan struct{}, 1)
	a.watchMu.Lock()
	a.watchers[ch] = struct{}{}
	a.watchMu.Unlock()
	defer func() {
		a.watchMu.Lock()
		delete(a.watchers, ch)
		a.watchMu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s := a.Snapshot()
		if pred(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-timer.C:
			return s, ErrWaitTimeout
		case <-ctx.Done():
			return s, ctx.Err()
		case <-a.done:
			return a.Snapshot(), ErrStopped
		}
	}
}

func (a *Actor) notify() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	for ch := range a.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (a *Actor) loop() {
	defer close(a.stopped)
	for {
		select {
		case msg := <-a.inbox:
			err := a.handle(msg.ev)
			if msg.reply != nil {
				msg.reply <- err
			}
		case <-a.done:
			return
		}
	}
}

// handle runs one event to completion.
func (a *Actor) handle(ev event.Event) error {
	a.mu.RLock()
	cur := a.state
	a.mu.RUnlock()

	next, effects, err := a.opts.Machine.Transition(cur, ev, a.opts.Now())
	if err != nil {
		l := a.log.Warn()
		if errors.Is(err, machine.ErrInvariant) {
			l = a.log.Error()
		}
		l.Err(err).Str("event", string(ev.Type)).Msg("transition rejected")
		return err
	}

	a.mu.Lock()
	a.state = next
	a.mu.Unlock()

	a.settleTask(ev)
	for _, e := range effects {
		a.interpret(e)
	}
	a.publish(next)
	a.notify()
	return nil
}

func (a *Actor) publish(s machine.State) {
	u, ok, err := a.prop.Next(s)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to diff session state")
		return
	}
	if !ok {
		return
	}
	if err := a.opts.Bus.Publish(event.Topic(a.id), u); err != nil {
		a.log.Warn().Err(err).Uint64("seq", u.Seq).Msg("failed to publish session update")
	}
}

// Stop ends the actor and hibernates its state. In-flight tasks are
// cancelled and timers discarded; both are settled in the saved snapshot.
func (a *Actor) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		close(a.done)
		<-a.stopped

		a.cancel()
		for _, t := range a.timers {
			t.Stop()
		}
		a.calls.Wait()

		data, err := machine.Encode(a.Snapshot())
		if err != nil {
			a.stopErr = err
			return
		}
		if err := a.opts.Store.SaveSnapshot(ctx, a.id, data); err != nil {
			a.stopErr = err
			return
		}
		a.log.Debug().Msg("session hibernated")
	})
	return a.stopErr
}

// Done is closed once the actor stops accepting events.
func (a *Actor) Done() <-chan struct{} { return a.done }
