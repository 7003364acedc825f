// Package patch computes JSON-patch operations between consecutive session
// snapshots and maintains shadow copies from a stream of updates.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/wI2L/jsondiff"

	"github.com/kitchenai/kitchen/internal/event"
)

// Operation is an RFC 6902 patch instruction.
type Operation = event.Operation

var (
	// ErrNoBase is returned when operations arrive before any full snapshot.
	ErrNoBase = errors.New("patch: no base snapshot")

	// ErrSequenceGap is returned when an update does not directly follow the
	// last applied one. The receiver must request a fresh snapshot.
	ErrSequenceGap = errors.New("patch: sequence gap")
)

// Diff returns the operations that transform prev into next.
// Both arguments must be JSON documents.
func Diff(prev, next []byte) ([]Operation, error) {
	p, err := jsondiff.CompareJSON(prev, next)
	if err != nil {
		return nil, fmt.Errorf("diff snapshots: %w", err)
	}
	if len(p) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	var ops []Operation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	for i := range ops {
		switch ops[i].Op {
		case "add", "replace", "test":
			// a null value is dropped by omitempty on the way out
			if len(ops[i].Value) == 0 {
				ops[i].Value = json.RawMessage("null")
			}
		}
	}
	return ops, nil
}

// Apply applies ops to doc and returns the patched document. doc is not modified.
func Apply(doc []byte, ops []Operation) ([]byte, error) {
	if len(ops) == 0 {
		return append([]byte(nil), doc...), nil
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	out, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply operations: %w", err)
	}
	return out, nil
}

// Equal reports whether two JSON documents are semantically equal: neither
// is needed to patch into the other. Invalid JSON is never equal.
func Equal(a, b []byte) bool {
	p, err := jsondiff.CompareJSON(a, b)
	return err == nil && len(p) == 0
}
