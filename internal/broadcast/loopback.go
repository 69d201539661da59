package broadcast

import "sync"

// Loopback is an in-memory group channel for tests. Sends are queued, not
// delivered, until Pump is called, so tests control interleaving exactly;
// Discard models message loss. Like the real transport, a peer receives its
// own sends back.
type Loopback struct {
	mu       sync.Mutex
	handlers map[string]Handler
	queue    []Envelope
	posts    map[string][][]string
}

func NewLoopback() *Loopback {
	return &Loopback{
		handlers: make(map[string]Handler),
		posts:    make(map[string][][]string),
	}
}

// Endpoint returns the Channel a single peer attaches to.
func (l *Loopback) Endpoint(localID string) Channel {
	return &loopbackPeer{hub: l, localID: localID}
}

// Pump delivers every queued message to every subscribed peer and returns
// the number of messages delivered. Messages sent during delivery are
// queued for the next Pump.
func (l *Loopback) Pump() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, env := range batch {
		for _, h := range handlers {
			h(env.Sender, env.Text)
		}
	}
	return len(batch)
}

// Discard drops all queued messages, simulating total loss.
func (l *Loopback) Discard() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.queue)
	l.queue = nil
	return n
}

// Posts returns the chat lines posted by the given peer, one slice per
// Post call.
func (l *Loopback) Posts(localID string) [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.posts[localID]
}

type loopbackPeer struct {
	hub     *Loopback
	localID string
}

func (p *loopbackPeer) Broadcast(rawText string) error {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	p.hub.queue = append(p.hub.queue, Envelope{Sender: p.localID, Text: rawText})
	return nil
}

func (p *loopbackPeer) Post(lines []string) error {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	p.hub.posts[p.localID] = append(p.hub.posts[p.localID], lines)
	return nil
}

func (p *loopbackPeer) Subscribe(h Handler) error {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	p.hub.handlers[p.localID] = h
	return nil
}

func (p *loopbackPeer) Close() error {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	delete(p.hub.handlers, p.localID)
	return nil
}
