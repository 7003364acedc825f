// Package machine implements the page session state machine.
//
// A session is a set of parallel regions (auth, input, generators, list
// creation, profile and socket) over a single context document holding the
// prompt, generated recipes, lists and preferences. The machine is pure:
//
//	next, effects, err := m.Transition(state, ev, time.Now())
//
// Transition never modifies its input. Side effects are returned as values
// (StartGeneration, CancelTask, StartTimer, Persist) and interpreted by the
// session actor, which reports their outcome back as events.
//
// # Generators
//
// Each generation category has an Idle, Holding, Generating triple. Holding
// is a debounce window keyed by a timer id; only the most recent timer
// promotes the region. Generating records the task id of the one live task
// for the category, and generation events carrying any other id are
// dropped. Starting a new task always emits a CancelTask for the previous
// one.
//
// # Results and recipes
//
// Submitting an input seeds a result with skeleton recipe slots before any
// generation runs, so listeners can bind data into stable slots. Slot 0 is
// filled by the instant recipe, the rest by recipe ideas. Recipe flags only
// move forward and complete recipes are never merged into again.
package machine
