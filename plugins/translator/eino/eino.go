// Package eino 以 cloudwego/eino 的 ChatModel 组件实现 contract.Translator。
package eino

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"pdftrans/pkg/contract"
)

// Options: OpenAI 兼容服务的最小配置。
type Options struct {
	BaseURL        string   `yaml:"base_url"`
	Model          string   `yaml:"model"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	APIKey         string   `yaml:"api_key"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Temperature    *float32 `yaml:"temperature,omitempty"`
	MaxTokens      int      `yaml:"max_tokens"`
}

// Client 包装 eino ChatModel。
type Client struct {
	cm    model.BaseChatModel
	model string
}

// New 构造基于 eino-ext openai 组件的客户端。
func New(ctx context.Context, o *Options) (*Client, error) {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Model == "" {
		opts.Model = "gpt-3.5-turbo"
	}
	if opts.APIKeyEnv == "" {
		opts.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("eino: %w: missing api key", contract.ErrInvalidInput)
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 60
	}
	if opts.Temperature == nil {
		t := float32(0.2)
		opts.Temperature = &t
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	cfg := &openai.ChatModelConfig{
		Model:       opts.Model,
		APIKey:      key,
		Timeout:     time.Duration(opts.TimeoutSeconds) * time.Second,
		Temperature: opts.Temperature,
		MaxTokens:   &opts.MaxTokens,
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("eino: create chat model: %w", err)
	}
	return &Client{cm: cm, model: opts.Model}, nil
}

// NewWithModel 使用已构造的 ChatModel（测试或自定义组件）。
func NewWithModel(cm model.BaseChatModel, name string) *Client { return &Client{cm: cm, model: name} }

var _ contract.Translator = (*Client)(nil)

func toSchema(msgs []contract.Message, text string) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs)+1)
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = append(out, schema.UserMessage(text))
	}
	return out
}

// Translate 实现 contract.Translator。
func (c *Client) Translate(ctx context.Context, req contract.Request) (contract.Result, error) {
	in := toSchema(req.Messages, req.Text)
	if len(in) == 0 {
		return contract.Result{}, fmt.Errorf("eino: %w: empty request", contract.ErrInvalidInput)
	}
	msg, err := c.cm.Generate(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Result{}, ctx.Err()
		}
		return contract.Result{}, fmt.Errorf("eino generate: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return contract.Result{}, fmt.Errorf("eino: %w: empty content", contract.ErrResponseInvalid)
	}
	res := contract.Result{Text: strings.TrimSpace(msg.Content), Usage: contract.Usage{Model: c.model}}
	if meta := msg.ResponseMeta; meta != nil {
		res.Usage.FinishReason = meta.FinishReason
		if u := meta.Usage; u != nil {
			res.Usage.PromptTokens = u.PromptTokens
			res.Usage.CompletionTokens = u.CompletionTokens
			res.Usage.TotalTokens = u.TotalTokens
		}
	}
	return res, nil
}
