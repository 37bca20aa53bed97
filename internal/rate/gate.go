package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pdftrans/pkg/contract"
)

// Limits: 翻译调用的节流配置。0 表示该维度不启用。
type Limits struct {
	RPM             int           // requests per minute
	TPM             int           // tokens per minute
	MaxTokensPerReq int           // 单次请求 token 上限（输入+预期输出）
	Interval        time.Duration // 相邻两次放行的固定间隔
}

// Gate: 顺序调用前的闸门。首次放行不等待；之后至少间隔 Interval，且满足 RPM/TPM 令牌桶。
type Gate struct {
	mu    sync.Mutex
	lim   Limits
	clk   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	req   bucket
	tok   bucket
	last  time.Time
	began bool
}

// NewGate 构造闸门；clk 为空则使用 time.Now。
func NewGate(lim Limits, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	now := clk()
	return &Gate{
		lim:   lim,
		clk:   clk,
		sleep: sleepCtx,
		req:   newBucket(lim.RPM, now),
		tok:   newBucket(lim.TPM, now),
	}
}

// Limits 返回配置。
func (g *Gate) Limits() Limits { return g.lim }

type bucket struct {
	cap   int
	level float64
	rate  float64
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	if capacity <= 0 {
		return bucket{}
	}
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) enabled() bool { return b.cap > 0 }

func (b *bucket) refill(now time.Time) {
	if !b.enabled() || !now.After(b.last) {
		// 时钟回拨视为无时间流逝
		return
	}
	b.level += now.Sub(b.last).Seconds() * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

func (b *bucket) canTake(n int) bool {
	return !b.enabled() || n <= 0 || b.level >= float64(n)
}

func (b *bucket) take(n int) {
	if !b.enabled() || n <= 0 {
		return
	}
	b.level -= float64(n)
	if b.level < 0 {
		b.level = 0
	}
}

// waitFor 返回达到可消费 n 还需等待的时长。
func (b *bucket) waitFor(n int) time.Duration {
	if !b.enabled() || n <= 0 {
		return 0
	}
	deficit := float64(n) - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

// Wait 阻塞直到可以发起下一次调用或 ctx 取消；tokens 超过单请求上限时快速失败。
func (g *Gate) Wait(ctx context.Context, tokens int) error {
	if tokens < 0 {
		return contract.ErrInvalidInput
	}
	if g.lim.MaxTokensPerReq > 0 && tokens > g.lim.MaxTokensPerReq {
		return fmt.Errorf("%w: request needs ~%d tokens, limit %d", contract.ErrInvalidInput, tokens, g.lim.MaxTokensPerReq)
	}
	// RPM/TPM 容量小于单次需求时永远无法放行
	if g.tok.enabled() && tokens > g.tok.cap {
		return fmt.Errorf("%w: request needs ~%d tokens, tpm %d", contract.ErrInvalidInput, tokens, g.tok.cap)
	}
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.mu.Lock()
		now := g.clk()
		g.req.refill(now)
		g.tok.refill(now)
		var wait time.Duration
		if g.began && g.lim.Interval > 0 {
			if due := g.last.Add(g.lim.Interval); now.Before(due) {
				wait = due.Sub(now)
			}
		}
		if w := g.req.waitFor(1); w > wait {
			wait = w
		}
		if w := g.tok.waitFor(tokens); w > wait {
			wait = w
		}
		if wait <= 0 {
			g.req.take(1)
			g.tok.take(tokens)
			g.last, g.began = now, true
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()
		if wait < minSleep {
			wait = minSleep
		}
		if err := g.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// sleepCtx 分片睡眠（最多 200ms 一步），及时响应取消。
func sleepCtx(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}
