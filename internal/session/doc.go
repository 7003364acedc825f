// Package session runs page sessions.
//
// An Actor owns one session state and applies events to it one at a time on a
// single goroutine, in the order they were sent. Each accepted transition is
// followed by:
//
//   - interpreting the machine's effects: generation tasks run in their own
//     goroutines under a per-task context, timers are time.AfterFunc callbacks
//     and persistence calls run asynchronously. All of them report back by
//     sending events to the same actor.
//   - publishing the change as a numbered update on the event bus, with the
//     session id as topic.
//
// The actor never waits on a task. Cancelled tasks have their context
// cancelled, and any event they still deliver is dropped by the machine
// because its task id is no longer current.
//
// # Manager
//
// The Manager creates actors, looks them up, and rehydrates hibernated
// sessions from persisted snapshots:
//
//	mgr := session.NewManager(session.Options{Machine: m, Tasks: runner, Store: store, Bus: bus})
//	a, err := mgr.Create(ctx, session.CreateOptions{})
//	a.Send(event.Event{Type: event.SetInput, Prompt: "chicken and broccoli"})
//	state, err := a.WaitFor(ctx, func(s machine.State) bool {
//		return s.Matches("recipes", "generating")
//	}, 5*time.Second)
//
// Stopping an actor hibernates it: its state is settled and saved so a later
// Get resumes where it left off.
package session
