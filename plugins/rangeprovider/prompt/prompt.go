// Package prompt 以终端问答的方式获取区间锚点短语。
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pdftrans/pkg/contract"
)

// 提示语。
const (
	BeginQuestion = "Enter the first 3 words of the text to translate (q to skip): "
	EndQuestion   = "Enter the last 3 words of the text to translate (q to skip): "
)

// Provider: 从 in 读取两行，问题写到 out。
//
// 读取无法被中断：ctx 取消后，后台读取仍阻塞到下一行输入或 in 关闭为止。
// 同一时刻至多存在一个这样的读取，下一次询问直接接收它的结果。
type Provider struct {
	in      *bufio.Reader
	out     io.Writer
	pending chan line
}

// New 构造 Provider。
func New(in io.Reader, out io.Writer) *Provider {
	if out == nil {
		out = io.Discard
	}
	return &Provider{in: bufio.NewReader(in), out: out}
}

var _ contract.RangeProvider = (*Provider)(nil)

// Phrases 依次询问 begin/end。begin 为哨兵时不再询问 end。
func (p *Provider) Phrases(ctx context.Context) (string, string, error) {
	begin, err := p.ask(ctx, BeginQuestion)
	if err != nil {
		return "", "", err
	}
	if begin == contract.AbortSentinel {
		return begin, "", nil
	}
	end, err := p.ask(ctx, EndQuestion)
	if err != nil {
		return "", "", err
	}
	return begin, end, nil
}

type line struct {
	s   string
	err error
}

func (p *Provider) ask(ctx context.Context, q string) (string, error) {
	if _, err := io.WriteString(p.out, q); err != nil {
		return "", err
	}
	// 不可取消时在调用方 goroutine 上读取
	if ctx.Done() == nil && p.pending == nil {
		s, err := p.in.ReadString('\n')
		return answer(line{s: s, err: err})
	}
	ch := p.pending
	if ch == nil {
		ch = make(chan line, 1)
		go func() {
			s, err := p.in.ReadString('\n')
			ch <- line{s: s, err: err}
		}()
	}
	select {
	case <-ctx.Done():
		p.pending = ch
		return "", ctx.Err()
	case l := <-ch:
		p.pending = nil
		return answer(l)
	}
}

func answer(l line) (string, error) {
	// 末行无换行符时仍接受输入
	if l.err != nil && !(errors.Is(l.err, io.EOF) && l.s != "") {
		return "", fmt.Errorf("range prompt: %w", l.err)
	}
	return strings.TrimSpace(l.s), nil
}
