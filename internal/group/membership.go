// Package group tracks which group each live connection currently belongs to.
package group

import "sync"

// Membership maps a connection ID to the single group it belongs to.
type Membership struct {
	mu     sync.RWMutex
	groups map[string]string
}

func NewMembership() *Membership {
	return &Membership{groups: make(map[string]string)}
}

// Join associates the connection with group, replacing any prior association.
func (m *Membership) Join(connID, group string) {
	m.mu.Lock()
	m.groups[connID] = group
	m.mu.Unlock()
}

// Leave removes the association for connID. Unknown connections are ignored.
func (m *Membership) Leave(connID string) {
	m.mu.Lock()
	delete(m.groups, connID)
	m.mu.Unlock()
}

// Lookup returns the current group of connID and whether it has one.
func (m *Membership) Lookup(connID string) (string, bool) {
	m.mu.RLock()
	g, ok := m.groups[connID]
	m.mu.RUnlock()
	return g, ok
}

func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups)
}
