package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const maxNameLength = 64

type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	Azure      bool
	APIVersion string
}

// OpenAIGenerator implements Generator on top of the chat completions streaming API.
type OpenAIGenerator struct {
	client *openai.Client
}

func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientCfg)}
}

func (g *OpenAIGenerator) Stream(ctx context.Context, messages []Message, opts Options) (Stream, error) {
	if opts.Model == "" {
		return nil, ErrNoModel
	}
	req := openai.ChatCompletionRequest{
		Model:    opts.Model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
		User:     opts.User,
	}
	s, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv skips chunks without content (role headers, usage, finish reasons).
func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, choice := range resp.Choices {
			b.WriteString(choice.Delta.Content)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		// Providers reject empty assistant turns; a reply that produced no text adds no context.
		if m.Role == RoleAssistant && m.Content == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Name:    sanitizeName(m.Name),
			Content: m.Content,
		})
	}
	return out
}

// sanitizeName maps a display name onto the provider's ^[a-zA-Z0-9_-]{1,64}$ name field.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if b.Len() >= maxNameLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
