// Package server exposes page sessions over HTTP.
//
// The server is a chi router with request id, panic recovery, real IP,
// CORS and zerolog request logging middleware.
//
// # API Endpoints
//
//   - POST   /session                   create a session
//   - GET    /session                   list running and hibernated sessions
//   - GET    /session/{id}              current state
//   - DELETE /session/{id}              hibernate and unload
//   - POST   /session/{id}/event        send an event, waiting for its transition
//   - GET    /session/{id}/wait         wait for ?region=&state=, bounded by ?timeout=
//   - GET    /session/{id}/socket       websocket transport
//   - GET    /session/{id}/event        the update stream as server-sent events
//
// # Socket protocol
//
// On connect the server sends one PAGE_SESSION_UPDATE carrying the full
// snapshot, then one update per accepted transition with RFC 6902
// operations. Updates carry consecutive sequence numbers; a receiver that
// sees a gap reconnects for a fresh snapshot. Clients send events as JSON
// objects with a type and the event fields:
//
//	{"type": "SET_INPUT", "prompt": "chicken and broccoli"}
//
// Connecting and disconnecting feed SOCKET_OPEN, SOCKET_CLOSE and
// SOCKET_ERROR to the session.
//
// # Identity
//
// User ids arrive from clients in AUTHENTICATE, REGISTRATION_COMPLETE and the
// userId of a new session. Config.Identify can check them against the request,
// e.g. its Authorization header; a rejected id answers 403 FORBIDDEN. Without
// it every id is accepted, which assumes an authenticating proxy in front.
//
// # Errors
//
// Failures use a common envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "session not found: abc"}}
package server
