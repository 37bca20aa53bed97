// Package selector 解析翻译区间：从操作者给出的锚点短语定位起止页。
package selector

import (
	"context"
	"fmt"
	"strings"

	"pdftrans/pkg/contract"
)

// State: 区间工作流状态。
type State int

const (
	NoRange State = iota
	RangeRequested
	RangeResolved
	RangeAborted
)

func (s State) String() string {
	switch s {
	case NoRange:
		return "no_range"
	case RangeRequested:
		return "range_requested"
	case RangeResolved:
		return "range_resolved"
	case RangeAborted:
		return "range_aborted"
	default:
		return "unknown"
	}
}

// Selection: 一次选择的终态。Range 仅在 RangeResolved 时有效；Err 记录中止原因。
type Selection struct {
	State State
	Range contract.Range
	Err   error
}

// Active 返回可用于分段的区间；未解析时为 nil（整文模式）。
func (s Selection) Active() *contract.Range {
	if s.State != RangeResolved {
		return nil
	}
	r := s.Range
	return &r
}

// Select 执行一次区间选择，不重试、不重新询问。
// provider 为 nil → NoRange；哨兵 → RangeAborted（不扫描页面）；
// 锚点缺失或起止颠倒 → RangeAborted 且返回类型化错误。
func Select(ctx context.Context, doc contract.Document, provider contract.RangeProvider) (Selection, error) {
	if provider == nil {
		return Selection{State: NoRange}, nil
	}
	sel := Selection{State: RangeRequested}
	begin, end, err := provider.Phrases(ctx)
	if err != nil {
		return abort(sel, err)
	}
	begin, end = strings.TrimSpace(begin), strings.TrimSpace(end)
	if begin == contract.AbortSentinel || end == contract.AbortSentinel {
		return abort(sel, contract.ErrRangeAborted)
	}
	rng, err := Resolve(doc.Pages, begin, end)
	if err != nil {
		return abort(sel, err)
	}
	sel.State, sel.Range = RangeResolved, rng
	return sel, nil
}

func abort(sel Selection, err error) (Selection, error) {
	sel.State, sel.Err = RangeAborted, err
	return sel, err
}

// Resolve 在全部页中按子串包含查找锚点；多页命中时取最后一页。
func Resolve(pages []contract.Page, begin, end string) (contract.Range, error) {
	if begin == "" || end == "" {
		return contract.Range{}, fmt.Errorf("%w: empty anchor phrase", contract.ErrInvalidInput)
	}
	start, ok := lastPage(pages, begin)
	if !ok {
		return contract.Range{}, &contract.AnchorError{Role: "begin", Phrase: begin, Page: -1}
	}
	stop, ok := lastPage(pages, end)
	if !ok {
		return contract.Range{}, &contract.AnchorError{Role: "end", Phrase: end, Page: -1}
	}
	if start > stop {
		return contract.Range{}, fmt.Errorf("%w: %s after %s", contract.ErrRangeInvalid, start.Key(), stop.Key())
	}
	return contract.Range{StartPage: start, EndPage: stop, Begin: begin, End: end}, nil
}

func lastPage(pages []contract.Page, phrase string) (contract.PageID, bool) {
	var (
		id    contract.PageID
		found bool
	)
	for _, p := range pages {
		if strings.Contains(p.Text, phrase) {
			id, found = p.ID, true
		}
	}
	return id, found
}

// Filter 将区间换算为页序列（闭区间）。区间引用文档不存在的页时返回 ErrPageMismatch。
// rng 为 nil 返回全部页。
func Filter(doc contract.Document, rng *contract.Range) ([]contract.Page, error) {
	if rng == nil {
		return doc.Pages, nil
	}
	for _, id := range []contract.PageID{rng.StartPage, rng.EndPage} {
		if _, ok := doc.Page(id); !ok {
			return nil, fmt.Errorf("%w: %s not in document of %d pages", contract.ErrPageMismatch, id.Key(), len(doc.Pages))
		}
	}
	out := make([]contract.Page, 0, int(rng.EndPage-rng.StartPage)+1)
	for _, p := range doc.Pages {
		if rng.Contains(p.ID) {
			out = append(out, p)
		}
	}
	if len(out) != int(rng.EndPage-rng.StartPage)+1 {
		return nil, fmt.Errorf("%w: range %s..%s has gaps", contract.ErrPageMismatch, rng.StartPage.Key(), rng.EndPage.Key())
	}
	return out, nil
}
