// Package fixed 提供配置中写定的区间锚点短语。
package fixed

import (
	"context"
	"fmt"
	"strings"

	"pdftrans/pkg/contract"
)

// Options: begin/end 为空视为配置错误；任一为 "q" 表示放弃区间。
type Options struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

// Provider 返回固定短语。
type Provider struct{ begin, end string }

// New 构造 Provider。
func New(o *Options) (*Provider, error) {
	if o == nil || strings.TrimSpace(o.Begin) == "" || strings.TrimSpace(o.End) == "" {
		return nil, fmt.Errorf("fixed range: %w: begin and end required", contract.ErrInvalidInput)
	}
	return &Provider{begin: o.Begin, end: o.End}, nil
}

var _ contract.RangeProvider = (*Provider)(nil)

// Phrases 实现 contract.RangeProvider。
func (p *Provider) Phrases(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	return p.begin, p.end, nil
}
