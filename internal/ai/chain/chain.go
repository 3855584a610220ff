// Package chain wraps the model providers behind two small interfaces. The OpenAI path goes
// through eino-ext; without credentials everything falls back to deterministic mocks so the
// service and its tests run offline.
package chain

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	baseai "github.com/gogogo1024/campus-desk/internal/ai"
	"github.com/gogogo1024/campus-desk/internal/common"
)

// EmbeddingChain turns FAQ text into vectors for the similarity fallback.
type EmbeddingChain interface {
	Embed(ctx context.Context, texts []string, dim int) ([][]float64, error)
	Provider() string
}

// ChatChain answers the chatbot's fallback conversation.
type ChatChain interface {
	Chat(ctx context.Context, messages []ChatMessage, maxTokens int) (ChatMessage, error)
	Provider() string
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	ProviderMock   = "mock"
	ProviderOpenAI = "openai"
)

var errMissingKey = errors.New("missing OPENAI_API_KEY")

// OfflineReply is what the mock chat answers; it asks the student to be more specific, which
// usually routes the next message to a rule or a ticket offer.
const OfflineReply = "I'm here to help with campus office inquiries. Could you please provide more details about your question? You can also create a ticket for assistance."

// NewEmbeddingChainFromConfig returns the OpenAI embedder when configured, otherwise the mock.
func NewEmbeddingChainFromConfig(cfg AIConfig) EmbeddingChain {
	if cfg.wantsOpenAI() {
		ec, err := newOpenAIEmbedding(cfg)
		if err == nil {
			return ec
		}
		common.L().Warn("openai embedding unavailable, using mock", zap.Error(err))
	}
	return mockEmbedding{}
}

// NewChatChainFromConfig returns the OpenAI chat model when configured, otherwise the mock.
func NewChatChainFromConfig(cfg AIConfig) ChatChain {
	if cfg.wantsOpenAI() {
		cc, err := newOpenAIChat(cfg)
		if err == nil {
			return cc
		}
		common.L().Warn("openai chat unavailable, using offline replies", zap.Error(err))
	}
	return mockChat{}
}

func (c AIConfig) wantsOpenAI() bool { return strings.EqualFold(c.Provider, ProviderOpenAI) }

type mockEmbedding struct{}

func (mockEmbedding) Embed(ctx context.Context, texts []string, dim int) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts")
	}
	return baseai.MockEmbeddings(texts, dim), nil
}

func (mockEmbedding) Provider() string { return ProviderMock }

type mockChat struct{}

func (mockChat) Chat(ctx context.Context, messages []ChatMessage, maxTokens int) (ChatMessage, error) {
	return ChatMessage{Role: RoleAssistant, Content: OfflineReply}, nil
}

func (mockChat) Provider() string { return ProviderMock }
