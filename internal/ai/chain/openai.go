package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoaclopenai "github.com/cloudwego/eino-ext/libs/acl/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const chatTemperature = 0.7

// openAIEmbedding keeps one eino embedder per requested dimension; 0 is the model default.
type openAIEmbedding struct {
	cfg AIConfig

	mu    sync.Mutex
	byDim map[int]*openaiembed.Embedder
}

func newOpenAIEmbedding(cfg AIConfig) (*openAIEmbedding, error) {
	if cfg.OpenAIKey == "" {
		return nil, errMissingKey
	}
	e := &openAIEmbedding{cfg: cfg, byDim: map[int]*openaiembed.Embedder{}}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout())
	defer cancel()
	if _, err := e.embedder(ctx, 0); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *openAIEmbedding) embedder(ctx context.Context, dim int) (*openaiembed.Embedder, error) {
	if dim < 0 {
		dim = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if emb, ok := e.byDim[dim]; ok {
		return emb, nil
	}
	ec := &openaiembed.EmbeddingConfig{
		APIKey:  e.cfg.OpenAIKey,
		Model:   e.cfg.OpenAIEmbedModel,
		BaseURL: e.cfg.OpenAIBaseURL,
		Timeout: e.cfg.timeout(),
	}
	if dim > 0 {
		d := dim
		ec.Dimensions = &d
	}
	emb, err := openaiembed.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("openai embedder (dim %d): %w", dim, err)
	}
	e.byDim[dim] = emb
	return emb, nil
}

func (e *openAIEmbedding) Embed(ctx context.Context, texts []string, dim int) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts")
	}
	emb, err := e.embedder(ctx, dim)
	if err != nil {
		return nil, err
	}
	return emb.EmbedStrings(ctx, texts)
}

func (e *openAIEmbedding) Provider() string { return ProviderOpenAI }

type openAIChat struct {
	client *einoaclopenai.Client
	cfg    AIConfig
}

func newOpenAIChat(cfg AIConfig) (*openAIChat, error) {
	if cfg.OpenAIKey == "" {
		return nil, errMissingKey
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout())
	defer cancel()
	cli, err := einoaclopenai.NewClient(ctx, &einoaclopenai.Config{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIChatModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat client: %w", err)
	}
	return &openAIChat{client: cli, cfg: cfg}, nil
}

func (c *openAIChat) Provider() string { return ProviderOpenAI }

// Chat sends the conversation with the configured per-call timeout. A panic inside the client
// is reported as an error so the chatbot can fall back to its canned answer.
func (c *openAIChat) Chat(ctx context.Context, messages []ChatMessage, maxTokens int) (out ChatMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("openai chat panic: %v", r)
		}
	}()
	msgs := toSchema(messages)
	if len(msgs) == 0 {
		return ChatMessage{}, errors.New("no messages")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()
	opts := []model.Option{model.WithTemperature(chatTemperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	resp, err := c.client.Generate(ctx, msgs, opts...)
	if err != nil {
		return ChatMessage{}, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return ChatMessage{}, errors.New("empty chat content")
	}
	return ChatMessage{Role: RoleAssistant, Content: strings.TrimSpace(resp.Content)}, nil
}

// toSchema drops blank turns and maps unknown roles to user.
func toSchema(in []ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(in))
	for _, m := range in {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := schema.User
		switch m.Role {
		case RoleSystem:
			role = schema.System
		case RoleAssistant:
			role = schema.Assistant
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}
