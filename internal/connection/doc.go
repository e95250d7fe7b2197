// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one notification socket per session identity
//   - Collapses concurrent Connect calls into a single handshake
//   - Reconnects after unexpected drops with capped exponential backoff
//   - Decodes inbound frames and fans them out on an event bus
//   - Ignores callbacks from superseded sockets
//
// The socket sits behind the Client interface (gorilla/websocket in production)
// and timers behind Clock, so tests drive the manager with fakes.
package connection
