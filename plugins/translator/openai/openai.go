package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"pdftrans/pkg/contract"
)

// Options: 最小必需配置。默认值与原始工具保持一致。
type Options struct {
	BaseURL        string   `yaml:"base_url"`    // 例如 https://api.openai.com/v1
	Model          string   `yaml:"model"`       // 默认 gpt-3.5-turbo
	APIKeyEnv      string   `yaml:"api_key_env"` // 优先从环境变量读取
	APIKey         string   `yaml:"api_key"`     // 明文传入（仅测试）
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	TopP           *float64 `yaml:"top_p,omitempty"`
	MaxTokens      int      `yaml:"max_tokens"`
	// 第三方兼容：
	EndpointPath       string            `yaml:"endpoint_path"` // 覆盖默认 /chat/completions；可为完整 URL
	DisableDefaultAuth bool              `yaml:"disable_default_auth"`
	ExtraHeaders       map[string]string `yaml:"extra_headers"`
	Proxy              string            `yaml:"proxy"`
}

// DefaultModel 等默认参数。
const (
	DefaultModel     = "gpt-3.5-turbo"
	DefaultMaxTokens = 1024
)

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.Temperature == nil {
		t := 0.2
		o.Temperature = &t
	}
	if o.TopP == nil {
		p := 1.0
		o.TopP = &p
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
}

// Client: 基于 resty 的 Chat Completions 客户端。不重试。
type Client struct {
	hc      *resty.Client
	url     string
	headers map[string]string
	opts    Options
}

// New 构造客户端。
func New(o *Options) (*Client, error) {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" && !opts.DisableDefaultAuth {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	hc := resty.New().
		SetTimeout(time.Duration(opts.TimeoutSeconds) * time.Second).
		SetRetryCount(0)
	if opts.Proxy != "" {
		hc.SetProxy(opts.Proxy)
	}
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if !opts.DisableDefaultAuth {
		h["Authorization"] = "Bearer " + key
	}
	for k, v := range opts.ExtraHeaders {
		if k != "" {
			h[k] = v
		}
	}
	return &Client{hc: hc, url: fullURL, headers: h, opts: opts}, nil
}

var _ contract.Translator = (*Client)(nil)

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaReq struct {
	Model            string      `json:"model"`
	Messages         []oaMessage `json:"messages"`
	Temperature      *float64    `json:"temperature,omitempty"`
	TopP             *float64    `json:"top_p,omitempty"`
	MaxTokens        int         `json:"max_tokens,omitempty"`
	FrequencyPenalty float64     `json:"frequency_penalty"`
	PresencePenalty  float64     `json:"presence_penalty"`
}

type oaResp struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// upstreamError 实现 net.Error 与 contract.UpstreamError：5xx/408 视为网络类错误。
type upstreamError struct {
	status int
	msg    string
}

func (e upstreamError) Error() string           { return fmt.Sprintf("openai upstream %d: %s", e.status, e.msg) }
func (e upstreamError) Timeout() bool           { return e.status == http.StatusRequestTimeout }
func (e upstreamError) Temporary() bool         { return e.status/100 == 5 }
func (e upstreamError) UpstreamStatus() int     { return e.status }
func (e upstreamError) UpstreamMessage() string { return e.msg }

// rateLimited: 429，同时携带上游信息。
type rateLimited struct{ upstreamError }

func (e rateLimited) Unwrap() error { return contract.ErrRateLimited }

// invalidRequest: 其余 4xx，视为输入/配置问题。
type invalidRequest struct{ upstreamError }

func (e invalidRequest) Unwrap() error { return contract.ErrInvalidInput }

// Translate 单次同步调用。
func (c *Client) Translate(ctx context.Context, req contract.Request) (contract.Result, error) {
	msgs := make([]oaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, oaMessage{Role: m.Role, Content: m.Content})
	}
	if len(msgs) == 0 {
		if strings.TrimSpace(req.Text) == "" {
			return contract.Result{}, fmt.Errorf("openai: %w: empty request", contract.ErrInvalidInput)
		}
		msgs = append(msgs, oaMessage{Role: "user", Content: req.Text})
	}
	body := oaReq{
		Model:       c.opts.Model,
		Messages:    msgs,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	}
	resp, err := c.hc.R().
		SetContext(ctx).
		SetHeaders(c.headers).
		SetBody(body).
		Post(c.url)
	if err != nil {
		if ctx.Err() != nil {
			return contract.Result{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return contract.Result{}, upstreamError{status: http.StatusRequestTimeout, msg: err.Error()}
		}
		return contract.Result{}, err
	}
	if code := resp.StatusCode(); code/100 != 2 {
		msg := strings.TrimSpace(string(resp.Body()))
		if len(msg) > 4<<10 {
			msg = msg[:4<<10]
		}
		ue := upstreamError{status: code, msg: msg}
		switch {
		case code == http.StatusTooManyRequests:
			return contract.Result{}, rateLimited{ue}
		case code == http.StatusRequestTimeout || code/100 == 5:
			return contract.Result{}, ue
		default:
			return contract.Result{}, invalidRequest{ue}
		}
	}
	var or oaResp
	if err := json.Unmarshal(resp.Body(), &or); err != nil {
		return contract.Result{}, fmt.Errorf("openai decode: %w", contract.ErrResponseInvalid)
	}
	if len(or.Choices) == 0 || strings.TrimSpace(or.Choices[0].Message.Content) == "" {
		return contract.Result{}, fmt.Errorf("openai: %w: no choices", contract.ErrResponseInvalid)
	}
	return contract.Result{
		Text: strings.TrimSpace(or.Choices[0].Message.Content),
		Usage: contract.Usage{
			ID:               or.ID,
			Model:            or.Model,
			Created:          or.Created,
			FinishReason:     or.Choices[0].FinishReason,
			PromptTokens:     or.Usage.PromptTokens,
			CompletionTokens: or.Usage.CompletionTokens,
			TotalTokens:      or.Usage.TotalTokens,
		},
	}, nil
}
