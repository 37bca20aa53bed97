package mock

import (
	"context"
	"fmt"
	"strings"

	"pdftrans/pkg/contract"
)

// Options: 无网络联调配置（可选）。
type Options struct {
	// Prefix: 输出前缀，默认 "MOCK"。
	Prefix string `yaml:"prefix"`
	// ResponseMode:
	//  - "" / "prefix": 输出 Prefix + ": " + 原文；
	//  - "echo": 原样返回原文；
	//  - "sentences": 每个英文句号替换为 "。"，便于验证合并时的断行。
	ResponseMode string `yaml:"response_mode,omitempty"`
	// TokensPerChar: 伪造的用量（按原文字符数估算），默认 1。
	TokensPerChar int `yaml:"tokens_per_char,omitempty"`
}

// Client: 确定性的占位翻译。
type Client struct {
	prefix string
	mode   string
	tpc    int
}

// New 构造 Client。
func New(o *Options) (*Client, error) {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Prefix == "" {
		opts.Prefix = "MOCK"
	}
	if opts.TokensPerChar <= 0 {
		opts.TokensPerChar = 1
	}
	mode := strings.TrimSpace(opts.ResponseMode)
	switch mode {
	case "", "prefix":
		mode = "prefix"
	case "echo", "sentences":
	default:
		return nil, fmt.Errorf("mock: %w: response_mode %q", contract.ErrInvalidInput, opts.ResponseMode)
	}
	return &Client{prefix: opts.Prefix, mode: mode, tpc: opts.TokensPerChar}, nil
}

var _ contract.Translator = (*Client)(nil)

// Translate 实现 contract.Translator。
func (c *Client) Translate(ctx context.Context, req contract.Request) (contract.Result, error) {
	if err := ctx.Err(); err != nil {
		return contract.Result{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return contract.Result{}, fmt.Errorf("mock: %w: empty text", contract.ErrInvalidInput)
	}
	var out string
	switch c.mode {
	case "echo":
		out = req.Text
	case "sentences":
		out = strings.ReplaceAll(req.Text, ". ", "。")
		out = strings.TrimSuffix(out, ".") + "。"
	default:
		out = c.prefix + ": " + req.Text
	}
	prompt := 0
	for _, m := range req.Messages {
		prompt += len([]rune(m.Content))
	}
	if prompt == 0 {
		prompt = len([]rune(req.Text))
	}
	prompt *= c.tpc
	completion := len([]rune(out)) * c.tpc
	return contract.Result{Text: out, Usage: contract.Usage{
		ID:               "mock-" + req.Key.String(),
		Model:            "mock",
		FinishReason:     "stop",
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}}, nil
}
