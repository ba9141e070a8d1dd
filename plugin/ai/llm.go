package ai

import (
	"context"
	"fmt"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat and returns the assistant's text.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// NewLLMService creates a new LLMService for cfg.Provider.
// Calls are throttled when cfg.RequestsPerSecond is positive.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	var svc LLMService
	var err error

	switch cfg.Provider {
	case "deepseek", "openai":
		// DeepSeek is compatible with OpenAI API
		svc, err = newOpenAIService(cfg)
	case "anthropic":
		svc, err = newAnthropicService(cfg)
	case "ollama":
		svc, err = newOllamaService(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		svc = NewRateLimitedService(svc, cfg.RequestsPerSecond, 1)
	}
	return svc, nil
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// FormatMessages formats messages for prompt templates.
func FormatMessages(systemPrompt string, userContent string, history []Message) []Message {
	messages := []Message{}
	if systemPrompt != "" {
		messages = append(messages, SystemPrompt(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(userContent))
	return messages
}
