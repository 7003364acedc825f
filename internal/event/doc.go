/*
Package event defines the closed event vocabulary of a kitchen session and the
pub/sub bus used to fan session updates out to listeners.

# Inbound Events

Every inbound message is a flat JSON object keyed by "type":

	{"type": "SET_INPUT", "prompt": "chicken and broccoli"}
	{"type": "ADD_TOKEN", "token": "garlic", "caller": {"id": "tab-1", "type": "client"}}

The vocabulary groups into:

User and input events:
  - SET_INPUT, SUBMIT, NEW_RECIPE, ADD_TOKEN, REMOVE_TOKEN, CLEAR
  - UNDO, REDO, LOAD_MORE, VIEW_RECIPE, NAVIGATE

List events:
  - CHOOSE_LISTS, CLOSE_LISTS, SAVE_TO_LIST
  - OPEN_CREATE_LIST, SUBMIT_LIST_NAME, CANCEL_CREATE_LIST

Profile and auth events:
  - UPDATE_PREFERENCE
  - AUTHENTICATE, REGISTER, REGISTRATION_COMPLETE, RETRY_REGISTRATION, SIGN_OUT

Lifecycle events:
  - SOCKET_OPEN, SOCKET_CLOSE, SOCKET_ERROR
  - TIMER (posted by the session actor when a debounce or timeout fires)

Persistence results:
  - CREATE_RECIPE_COMPLETE, CREATE_RECIPE_ERROR
  - CREATE_LIST_COMPLETE, CREATE_LIST_ERROR
  - SAVE_TO_LIST_COMPLETE, SAVE_TO_LIST_ERROR
  - PREFERENCES_LOADED, PREFERENCES_LOAD_ERROR, PREFERENCES_SAVED, PREFERENCES_SAVE_ERROR
  - LISTS_LOADED, LISTS_LOAD_ERROR

Decode rejects any type outside this set with ErrUnknownEvent.

# Generation Events

Generation tasks report through four phases named <CATEGORY>_<PHASE>:

	PLACEHOLDER_START
	SUGGEST_TOKENS_PROGRESS
	RECIPE_IDEAS_METADATA_COMPLETE
	FULL_RECIPE_ERROR

The session machine routes on these names, so a new category must follow the
convention exactly. Use GenerationType and SplitGeneration instead of building
or slicing the strings by hand:

	t := event.GenerationType(event.CategoryFullRecipe, event.PhaseProgress)
	cat, phase, ok := event.SplitGeneration(t)

# Outbound Updates

Listeners receive Update values. The first update on a connection carries the
full snapshot; later ones carry JSON-patch operations with a sequence number
so receivers can detect gaps:

	{"type": "PAGE_SESSION_UPDATE", "sessionId": "...", "seq": 4, "operations": [...]}

# Bus

Bus delivers published values to the subscribers of a topic over a watermill
GoChannel. Values travel as JSON; session actors publish their updates under
the session id:

	bus := event.NewBus()
	defer bus.Close()

	unsubscribe := bus.Subscribe(event.Topic(sessionID), func(env event.Envelope) {
		var u event.Update
		if err := env.Decode(&u); err != nil {
			return
		}
		...
	})
	defer unsubscribe()

	err := bus.Publish(event.Topic(sessionID), update)

Publish blocks until every subscriber has handled the message, which keeps
the updates of one session in order. Subscribers therefore MUST:

  - Complete quickly and use non-blocking channel sends
  - Never publish or unsubscribe from within the callback
*/
package event
