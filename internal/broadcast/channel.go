// Package broadcast provides the group-scoped message transport: a NATS
// adapter for production and an in-memory loopback for tests. Delivery is
// best-effort, unordered, at most once per send.
package broadcast

// Handler receives one raw protocol line from a peer. senderID is the
// transport's sender field; the session normalizes and self-filters it.
type Handler func(senderID, rawText string)

// Channel defines what the session needs from the group transport.
type Channel interface {
	// Broadcast sends one protocol line to the whole group.
	Broadcast(rawText string) error

	// Post sends user-visible chat lines to the group. Invoked at most once
	// per encounter, by the elected winner only.
	Post(lines []string) error

	// Subscribe registers the inbound message handler.
	Subscribe(h Handler) error

	Close() error
}
