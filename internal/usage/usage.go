// Package usage 汇总每块用量记录并按单价估算费用。
package usage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"pdftrans/pkg/contract"
)

// DefaultPer1K: 每 1000 token 的默认单价（USD）。
const DefaultPer1K = 0.002

// Summary: 用量汇总。
type Summary struct {
	Chunks           int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Models           []string // 出现过的模型，去重排序
}

// Price 按每千 token 单价计算费用。
func Price(totalTokens int, per1K float64) float64 {
	return float64(totalTokens) / 1000.0 * per1K
}

// Summarize 读取 StageLog 下全部记录并求和。单条记录损坏即失败。
func Summarize(ctx context.Context, store contract.ChunkStore, per1K float64) (Summary, error) {
	keys, err := store.List(ctx, contract.StageLog)
	if err != nil {
		return Summary{}, fmt.Errorf("usage list: %w", err)
	}
	var s Summary
	models := map[string]struct{}{}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		u, err := store.ReadUsage(ctx, k)
		if err != nil {
			return Summary{}, &contract.UnitError{Stage: "usage", Key: k, Err: err}
		}
		s.Chunks++
		s.PromptTokens += u.PromptTokens
		s.CompletionTokens += u.CompletionTokens
		s.TotalTokens += u.TotalTokens
		if u.Model != "" {
			models[u.Model] = struct{}{}
		}
	}
	for m := range models {
		s.Models = append(s.Models, m)
	}
	sort.Strings(s.Models)
	s.Cost = Price(s.TotalTokens, per1K)
	return s, nil
}

// Write 以人类可读形式输出汇总。
func (s Summary) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "chunks: %d\nprompt_tokens: %d\ncompletion_tokens: %d\ntotal_tokens: %d\ncost_usd: %.6f\n",
		s.Chunks, s.PromptTokens, s.CompletionTokens, s.TotalTokens, s.Cost)
	if err != nil {
		return err
	}
	for _, m := range s.Models {
		if _, err := fmt.Fprintf(w, "model: %s\n", m); err != nil {
			return err
		}
	}
	return nil
}
