// Package transport connects clients to the engine over HTTP and WebSocket.
//
// Inbound messages are either raw text commands ("examine bookshelf") or
// JSON commands validated against CommandSchema:
//
//	{"action": "move", "data": {"target": "old_street"}}
//	{"optionId": "opt1"}
//
// Both forms are normalized to the textual form handed to the active
// state. Outbound messages are JSON envelopes built by Response.
package transport
