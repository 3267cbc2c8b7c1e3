package chat

import "strings"

type Kind int

const (
	KindPeer Kind = iota
	KindAssistant
)

func (k Kind) String() string {
	if k == KindAssistant {
		return "assistant"
	}
	return "peer"
}

type Classification struct {
	Kind Kind
	// Text is the message with the assistant marker and surrounding whitespace removed.
	Text string
}

// Classify routes messages starting with prefix to the assistant. An empty
// prefix disables the assistant.
func Classify(prefix, message string) Classification {
	if prefix == "" || !strings.HasPrefix(message, prefix) {
		return Classification{Kind: KindPeer, Text: message}
	}
	return Classification{Kind: KindAssistant, Text: strings.TrimSpace(message[len(prefix):])}
}
