package handlers

import (
	"sync"

	"github.com/BaSui01/council/council"
)

// GateRegistry tracks the clarification gate of each in-flight run so
// the submit endpoint can resume it.
type GateRegistry struct {
	mu    sync.Mutex
	gates map[string]*council.ChannelGate
}

// NewGateRegistry creates an empty registry.
func NewGateRegistry() *GateRegistry {
	return &GateRegistry{gates: make(map[string]*council.ChannelGate)}
}

// Register installs a gate for a conversation, replacing any stale one.
func (r *GateRegistry) Register(conversationID string) *council.ChannelGate {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := council.NewChannelGate()
	r.gates[conversationID] = gate
	return gate
}

// Lookup returns the gate for a conversation, or nil.
func (r *GateRegistry) Lookup(conversationID string) *council.ChannelGate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gates[conversationID]
}

// Remove drops the gate once its run finishes.
func (r *GateRegistry) Remove(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gates, conversationID)
}
