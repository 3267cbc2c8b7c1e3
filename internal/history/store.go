// Package history keeps the ordered, per-group conversation log used as
// assistant context.
package history

import (
	"sync"

	"go-ai-chat/internal/llm"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one recorded message. Name is empty for assistant turns.
type Turn struct {
	Speaker Speaker
	Name    string
	Text    string
}

func (t Turn) message() llm.Message {
	if t.Speaker == SpeakerAssistant {
		return llm.Message{Role: llm.RoleAssistant, Content: t.Text}
	}
	return llm.Message{Role: llm.RoleUser, Name: t.Name, Content: t.Text}
}

type groupLog struct {
	mu    sync.Mutex
	turns []Turn
}

// Store holds one log per group. Appends to the same group are linearized by
// the group's own lock, so unrelated groups never contend.
type Store struct {
	mu       sync.RWMutex
	groups   map[string]*groupLog
	maxTurns int
}

// NewStore returns an empty store. maxTurns caps each group's log, dropping
// the oldest turns first; zero keeps every turn.
func NewStore(maxTurns int) *Store {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &Store{
		groups:   make(map[string]*groupLog),
		maxTurns: maxTurns,
	}
}

func (s *Store) log(group string) *groupLog {
	s.mu.RLock()
	l, ok := s.groups[group]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.groups[group]; ok {
		return l
	}
	l = &groupLog{}
	s.groups[group] = l
	return l
}

// AppendUserTurn records a user message and returns the group's full
// conversation, including the new turn, as generation context.
func (s *Store) AppendUserTurn(group, name, text string) []llm.Message {
	l := s.log(group)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.append(Turn{Speaker: SpeakerUser, Name: name, Text: text}, s.maxTurns)
	out := make([]llm.Message, len(l.turns))
	for i, t := range l.turns {
		out[i] = t.message()
	}
	return out
}

func (s *Store) AppendAssistantTurn(group, text string) {
	l := s.log(group)

	l.mu.Lock()
	l.append(Turn{Speaker: SpeakerAssistant, Text: text}, s.maxTurns)
	l.mu.Unlock()
}

// Turns returns a copy of the group's log. Unknown groups yield nil.
func (s *Store) Turns(group string) []Turn {
	s.mu.RLock()
	l, ok := s.groups[group]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (s *Store) Groups() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups)
}

func (l *groupLog) append(t Turn, maxTurns int) {
	l.turns = append(l.turns, t)
	if maxTurns > 0 && len(l.turns) > maxTurns {
		kept := make([]Turn, maxTurns)
		copy(kept, l.turns[len(l.turns)-maxTurns:])
		l.turns = kept
	}
}
