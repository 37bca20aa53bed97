// Package segment 将单页原始文本切分为定长句组（块）。
package segment

import (
	"context"
	"fmt"
	"strings"

	"pdftrans/pkg/contract"
)

// LineBreak: 抽取格式的行标记。
const LineBreak = "\r\n"

// DefaultSize: 每块句数上限。
const DefaultSize = 5

// 预处理替换表，按顺序应用。
var normalizeSteps = []struct{ old, new string }{
	{"Fig.", "Fig"},
	{"fig.", "fig"},
	{"\x02", "-"},
}

// Normalize 清洗易误判句界的缩写与抽取伪影。whole 为整文模式（额外把 NUL 替换为空格）。
func Normalize(text string, whole bool) string {
	for _, s := range normalizeSteps {
		text = strings.ReplaceAll(text, s.old, s.new)
	}
	if whole {
		text = strings.ReplaceAll(text, "\x00", " ")
	}
	return text
}

// Lines 按 LineBreak 切分。
func Lines(text string) []string { return strings.Split(text, LineBreak) }

// lastContaining 返回最后一个包含 phrase 的行下标；未找到为 -1。
func lastContaining(lines []string, phrase string) int {
	at := -1
	for i, l := range lines {
		if strings.Contains(l, phrase) {
			at = i
		}
	}
	return at
}

// Retain 依据区间裁剪边界页的行：
//   - 起始页：从最后一个含 Begin 的行开始（含）；
//   - 结束页：到最后一个含 End 的行为止（含）；
//   - 其余页或 rng 为 nil：全部保留。
//
// 起止同页时先裁起点再在剩余行内找终点。
func Retain(lines []string, page contract.PageID, rng *contract.Range) ([]string, error) {
	if rng == nil {
		return lines, nil
	}
	if page == rng.StartPage {
		i := lastContaining(lines, rng.Begin)
		if i < 0 {
			return nil, &contract.AnchorError{Role: "begin", Phrase: rng.Begin, Page: page}
		}
		lines = lines[i:]
	}
	if page == rng.EndPage {
		j := lastContaining(lines, rng.End)
		if j < 0 {
			return nil, &contract.AnchorError{Role: "end", Phrase: rng.End, Page: page}
		}
		lines = lines[:j+1]
	}
	return lines, nil
}

// Group 将句子按 size 分组；0 句返回 nil。
func Group(sentences []string, size int) [][]string {
	if size <= 0 {
		size = DefaultSize
	}
	if len(sentences) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(sentences)+size-1)/size)
	for i := 0; i < len(sentences); i += size {
		end := i + size
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, sentences[i:end])
	}
	return out
}

// Segmenter: 页 → 块。
type Segmenter struct {
	Tokenizer contract.Tokenizer
	Size      int
}

// New 构造 Segmenter；size<=0 使用 DefaultSize。
func New(tok contract.Tokenizer, size int) *Segmenter {
	if size <= 0 {
		size = DefaultSize
	}
	return &Segmenter{Tokenizer: tok, Size: size}
}

// Segment 切分单页并逐块交给 emit（通常是写入存储）。
// rng 为 nil 表示整文模式。返回最后写出的块；0 句时 ok=false。
// emit 失败立即返回，已写出的块保持不变。
func (s *Segmenter) Segment(ctx context.Context, page contract.Page, rng *contract.Range, emit func(contract.Chunk) error) (last contract.Chunk, ok bool, err error) {
	if s == nil || s.Tokenizer == nil {
		return last, false, fmt.Errorf("%w: tokenizer not configured", contract.ErrSegmentationFailed)
	}
	lines := Lines(Normalize(page.Text, rng == nil))
	lines, err = Retain(lines, page.ID, rng)
	if err != nil {
		return last, false, err
	}
	sents, err := s.Tokenizer.Sentences(strings.Join(lines, " "))
	if err != nil {
		return last, false, fmt.Errorf("%w: %s: %v", contract.ErrSegmentationFailed, page.ID.Key(), err)
	}
	for i, g := range Group(sents, s.Size) {
		if err := ctx.Err(); err != nil {
			return last, ok, err
		}
		c := contract.Chunk{
			Key:       contract.ChunkKey{Page: page.ID, Index: i},
			Text:      strings.Join(g, " "),
			Sentences: len(g),
		}
		if emit != nil {
			if err := emit(c); err != nil {
				return last, ok, err
			}
		}
		last, ok = c, true
	}
	return last, ok, nil
}
