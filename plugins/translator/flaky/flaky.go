package flaky

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"pdftrans/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	Prefix string `yaml:"prefix"`
	// FailOn: 失败的调用序号（自 1 起）。为空时仅第一次调用失败。
	FailOn []int `yaml:"fail_on"`
	// Error: rate_limited | invalid_response | network，默认 rate_limited。
	Error string `yaml:"error"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `yaml:"log_path,omitempty"`
}

// Client 按调用序号注入失败，其余调用返回占位翻译。用于验证跳过/中止策略。
type Client struct {
	prefix  string
	failOn  map[int32]bool
	err     error
	logPath string
	count   atomic.Int32
}

// networkError 模拟连接失败。
type networkError struct{}

func (networkError) Error() string   { return "flaky: connection reset" }
func (networkError) Timeout() bool   { return false }
func (networkError) Temporary() bool { return true }

// New 构造 Client。
func New(o *Options) (*Client, error) {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.Prefix == "" {
		opts.Prefix = "FLAKY"
	}
	if len(opts.FailOn) == 0 {
		opts.FailOn = []int{1}
	}
	c := &Client{prefix: opts.Prefix, failOn: make(map[int32]bool, len(opts.FailOn)), logPath: opts.LogPath}
	for _, n := range opts.FailOn {
		c.failOn[int32(n)] = true
	}
	switch opts.Error {
	case "", "rate_limited":
		c.err = contract.ErrRateLimited
	case "invalid_response":
		c.err = contract.ErrResponseInvalid
	case "network":
		c.err = networkError{}
	default:
		return nil, fmt.Errorf("flaky: %w: error %q", contract.ErrInvalidInput, opts.Error)
	}
	return c, nil
}

func (c *Client) log(s string) {
	if c.logPath == "" {
		return
	}
	_ = appendFile(c.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Calls 返回已发生的调用次数。
func (c *Client) Calls() int { return int(c.count.Load()) }

// Translate 实现 contract.Translator。
func (c *Client) Translate(ctx context.Context, req contract.Request) (contract.Result, error) {
	if err := ctx.Err(); err != nil {
		return contract.Result{}, err
	}
	n := c.count.Add(1)
	if c.failOn[n] {
		c.log(fmt.Sprintf("%d %s fail", n, req.Key))
		return contract.Result{}, c.err
	}
	c.log(fmt.Sprintf("%d %s ok", n, req.Key))
	return contract.Result{
		Text:  c.prefix + ": " + req.Text,
		Usage: contract.Usage{Model: "flaky", FinishReason: "stop", TotalTokens: len(req.Text)},
	}, nil
}

var _ contract.Translator = (*Client)(nil)
