// Package obs maintains the control-plane connection to OBS Studio over
// the obs-websocket v5 protocol.
//
// The client performs the Hello/Identify handshake (with SHA-256
// challenge authentication when the server requires it), subscribes to
// scene and transition events, and reduces them to one question: which
// sources are live, which are in preview, and which are idle. Source
// state changes are handed to a callback; the registry side maps sources
// to devices via their assignment.
//
// The connection is supervised: a dropped socket triggers reconnection
// with exponential backoff, and connection state transitions are
// reported so consumers can surface OBS availability.
package obs
