// Package generation turns streamed LLM output into the four-phase generation
// events a session consumes: START, PROGRESS (zero or more partial payloads),
// then COMPLETE with a validated payload or ERROR.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/partialjson"
)

// ErrIncomplete is reported when a stream ends without a complete JSON value.
var ErrIncomplete = errors.New("output is not a complete JSON value")

// Source yields chunks of generated text. Recv returns io.EOF after the last chunk.
type Source interface {
	Recv() (string, error)
	Close()
}

// Emit receives the events produced for one task.
type Emit func(event.Event)

// Payload is a generation result that can check its own completeness.
type Payload[T any] interface {
	*T
	Validate() error
}

// Run drains src and emits the events of task id. Partial output is decoded
// into T after closing its open structures; the final output must decode and
// pass Validate. Run returns without emitting anything once ctx is done.
func Run[T any, P Payload[T]](ctx context.Context, cat event.Category, id string, src Source, emit Emit) {
	defer src.Close()

	send := func(ev event.Event) {
		if ctx.Err() == nil {
			emit(ev)
		}
	}

	var raw strings.Builder
	var last []byte
	started := false

	for {
		chunk, err := src.Recv()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			send(failure(cat, id, err, raw.String()))
			return
		}
		if !started {
			started = true
			send(event.Generation(cat, event.PhaseStart, id, nil))
		}
		if chunk == "" {
			continue
		}
		raw.WriteString(chunk)

		data, ok := decodePartial[T](raw.String())
		if !ok || bytes.Equal(data, last) {
			continue
		}
		last = data
		send(event.Generation(cat, event.PhaseProgress, id, data))
	}

	data, err := decodeFull[T, P](raw.String())
	if err != nil {
		send(failure(cat, id, err, raw.String()))
		return
	}
	send(event.Generation(cat, event.PhaseComplete, id, data))
}

func decodePartial[T any](raw string) (json.RawMessage, bool) {
	repaired, ok := partialjson.Repair(raw)
	if !ok {
		return nil, false
	}
	var partial T
	if err := json.Unmarshal([]byte(repaired), &partial); err != nil {
		return nil, false
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return nil, false
	}
	return data, true
}

// decodeFull returns the first complete object in raw that decodes into T and
// validates. When none does, the first object's error is returned.
func decodeFull[T any, P Payload[T]](raw string) (json.RawMessage, error) {
	objs := partialjson.Objects(raw)
	if len(objs) == 0 {
		return nil, ErrIncomplete
	}
	var first error
	for _, text := range objs {
		var full T
		err := json.Unmarshal([]byte(text), &full)
		if err == nil {
			err = P(&full).Validate()
		}
		if err == nil {
			return json.Marshal(full)
		}
		if first == nil {
			first = err
		}
	}
	return nil, first
}

func failure(cat event.Category, id string, err error, raw string) event.Event {
	ev := event.Generation(cat, event.PhaseError, id, nil)
	ev.Error = err.Error()
	ev.Raw = raw
	return ev
}
