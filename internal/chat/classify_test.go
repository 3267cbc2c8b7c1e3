package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		message  string
		wantKind Kind
		wantText string
	}{
		{name: "plain message", prefix: "@gpt", message: "hello", wantKind: KindPeer, wantText: "hello"},
		{name: "assistant", prefix: "@gpt", message: "@gpt what is 2+2?", wantKind: KindAssistant, wantText: "what is 2+2?"},
		{name: "assistant extra whitespace", prefix: "@gpt", message: "@gpt   \thi  ", wantKind: KindAssistant, wantText: "hi"},
		{name: "bare marker", prefix: "@gpt", message: "@gpt", wantKind: KindAssistant, wantText: ""},
		{name: "marker not at start", prefix: "@gpt", message: "hey @gpt", wantKind: KindPeer, wantText: "hey @gpt"},
		{name: "case sensitive", prefix: "@gpt", message: "@GPT hi", wantKind: KindPeer, wantText: "@GPT hi"},
		{name: "peer keeps whitespace", prefix: "@gpt", message: "  spaced  ", wantKind: KindPeer, wantText: "  spaced  "},
		{name: "empty prefix disables", prefix: "", message: "@gpt hi", wantKind: KindPeer, wantText: "@gpt hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.prefix, tt.message)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantText, got.Text)
		})
	}
}
