// Package merge 将按 (page, index) 排序的译文块拼接为单一文档。
package merge

import (
	"strings"

	"pdftrans/pkg/contract"
)

// DefaultFullStop: 目标语言句末标点。
const DefaultFullStop = "。"

// Item: 待合并的译文块。
type Item struct {
	Key  contract.ChunkKey
	Text string
}

// Options: 合并选项；零值使用默认句号。
type Options struct {
	FullStop string
}

// Normalize 在每个句末标点后插入换行。stop 为空时原样返回。
func Normalize(text, stop string) string {
	if stop == "" {
		return text
	}
	return strings.ReplaceAll(text, stop, stop+"\n")
}

// Adjacency 返回每块的“下一块同页”标记；最后一块视为跨页。
func Adjacency(keys []contract.ChunkKey) []bool {
	same := make([]bool, len(keys))
	for i := 0; i+1 < len(keys); i++ {
		same[i] = keys[i].Page == keys[i+1].Page
	}
	return same
}

// Merge 纯函数：同页相邻块之间追加一个换行，跨页（含末块）追加空行。
// items 须已按 (page, index) 升序；每次调用从头计算，结果确定。
func Merge(items []Item, opt Options) string {
	stop := opt.FullStop
	if stop == "" {
		stop = DefaultFullStop
	}
	keys := make([]contract.ChunkKey, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	same := Adjacency(keys)
	var b strings.Builder
	for i, it := range items {
		b.WriteString(Normalize(it.Text, stop))
		if same[i] {
			b.WriteString("\n")
		} else {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}
