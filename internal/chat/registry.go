package chat

import "sync"

// Channel is the write side of one live connection. Implementations must be
// comparable (pointer receivers) so the registry can tell a superseded
// connection from the current one.
type Channel interface {
	Send(payload []byte) error
	Close(reason string)
}

// Registry maps a connected username to its single live channel on this
// process.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Channel
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Channel)}
}

// Register binds owner to ch and returns the channel it replaced, if any.
// The replaced channel is left open; closing it is up to the caller.
func (r *Registry) Register(owner string, ch Channel) Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.conns[owner]
	r.conns[owner] = ch
	return prev
}

// Unregister removes owner only while ch is still its current channel, so a
// superseded connection shutting down cannot evict its replacement.
func (r *Registry) Unregister(owner string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[owner]; !ok || cur != ch {
		return false
	}
	delete(r.conns, owner)
	return true
}

// Lookup returns the live channel for owner.
func (r *Registry) Lookup(owner string) (Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.conns[owner]
	return ch, ok
}

// Len reports the number of connected users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns)
}
