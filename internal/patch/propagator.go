package patch

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kitchenai/kitchen/internal/event"
)

// Propagator turns a sequence of snapshots into numbered updates for one
// session. Seq 0 is the empty document; every published diff increments it.
type Propagator struct {
	mu        sync.Mutex
	sessionID string
	last      []byte
	seq       uint64
}

// NewPropagator creates a propagator for a session.
func NewPropagator(sessionID string) *Propagator {
	return &Propagator{sessionID: sessionID}
}

// Next records snapshot and returns the update that brings listeners from the
// previous snapshot to it. ok is false when nothing changed.
func (p *Propagator) Next(snapshot any) (update event.Update, ok bool, err error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return event.Update{}, false, fmt.Errorf("encode snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.last == nil {
		p.last = data
		p.seq++
		return p.fullLocked(), true, nil
	}

	ops, err := Diff(p.last, data)
	if err != nil {
		return event.Update{}, false, err
	}
	if len(ops) == 0 {
		return event.Update{}, false, nil
	}

	p.last = data
	p.seq++
	return event.Update{
		Type:       event.PageSessionUpdate,
		SessionID:  p.sessionID,
		Seq:        p.seq,
		Operations: ops,
	}, true, nil
}

// Full returns a snapshot update at the current sequence number, for
// listeners that have no base yet.
func (p *Propagator) Full() event.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullLocked()
}

func (p *Propagator) fullLocked() event.Update {
	snap := p.last
	if snap == nil {
		snap = []byte("null")
	}
	return event.Update{
		Type:      event.PageSessionUpdate,
		SessionID: p.sessionID,
		Seq:       p.seq,
		Snapshot:  append(json.RawMessage(nil), snap...),
	}
}

// Seq returns the sequence number of the last recorded snapshot.
func (p *Propagator) Seq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Shadow is the receiving side of a Propagator. It is not safe for concurrent use.
type Shadow struct {
	doc []byte
	seq uint64
}

// Apply folds an update into the shadow copy. Snapshots always replace the
// base. Updates at or below the current sequence are ignored.
func (s *Shadow) Apply(u event.Update) error {
	if u.IsSnapshot() {
		s.doc = append([]byte(nil), u.Snapshot...)
		s.seq = u.Seq
		return nil
	}
	if s.doc == nil {
		return ErrNoBase
	}
	if u.Seq <= s.seq {
		return nil
	}
	if u.Seq != s.seq+1 {
		return fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, s.seq, u.Seq)
	}

	doc, err := Apply(s.doc, u.Operations)
	if err != nil {
		return err
	}
	s.doc = doc
	s.seq = u.Seq
	return nil
}

// Ready reports whether a base snapshot has been received.
func (s *Shadow) Ready() bool {
	return s.doc != nil
}

// Seq returns the sequence number of the current shadow copy.
func (s *Shadow) Seq() uint64 {
	return s.seq
}

// Document returns a copy of the current shadow document.
func (s *Shadow) Document() json.RawMessage {
	return append(json.RawMessage(nil), s.doc...)
}

// Decode unmarshals the shadow document into v.
func (s *Shadow) Decode(v any) error {
	if s.doc == nil {
		return ErrNoBase
	}
	return json.Unmarshal(s.doc, v)
}
