// Package stream batches a token-by-token generation stream into a bounded
// number of broadcast events. Every event carries the full text so far, so a
// receiver can render the latest event for an id without reassembling deltas.
package stream

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultThreshold is the number of new runes that must accumulate beyond
// the last flush before another intermediate flush is emitted.
const DefaultThreshold = 20

// Flush is one broadcastable snapshot of a streaming message.
type Flush struct {
	ID    string
	Text  string
	Final bool
}

type Coalescer struct {
	threshold int
	newID     func() string
}

func NewCoalescer(threshold int) *Coalescer {
	if threshold < 0 {
		threshold = 0
	}
	return &Coalescer{
		threshold: threshold,
		newID:     func() string { return uuid.New().String() },
	}
}

// Start allocates a new streaming identity with no text.
func (c *Coalescer) Start() *Message {
	return &Message{id: c.newID(), threshold: c.threshold}
}

// Message accumulates one in-flight reply. It is owned by a single
// generation task and is not safe for concurrent use.
type Message struct {
	id        string
	threshold int
	text      strings.Builder
	length    int
	flushed   int
	finished  bool
}

func (m *Message) ID() string { return m.id }

func (m *Message) Text() string { return m.text.String() }

// Append adds fragment and reports a flush once more than threshold runes
// have arrived since the previous one. Fragments after Finish are ignored.
func (m *Message) Append(fragment string) (Flush, bool) {
	if m.finished || fragment == "" {
		return Flush{}, false
	}
	m.text.WriteString(fragment)
	m.length += utf8.RuneCountInString(fragment)

	if m.length-m.flushed <= m.threshold {
		return Flush{}, false
	}
	m.flushed = m.length
	return Flush{ID: m.id, Text: m.text.String()}, true
}

// Finish returns the final flush carrying the full text, even when nothing
// new arrived since the last flush or no fragment arrived at all. Only the
// first call reports ok; later calls return no flush.
func (m *Message) Finish() (Flush, bool) {
	if m.finished {
		return Flush{}, false
	}
	m.finished = true
	m.flushed = m.length
	return Flush{ID: m.id, Text: m.text.String(), Final: true}, true
}
