package contract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PageID: 文档内从 0 开始的页序号。
type PageID int

// pageKeyPrefix: 页键前缀，形如 page_<i>。
const pageKeyPrefix = "page_"

// Key 渲染为 page_<i>。
func (p PageID) Key() string { return pageKeyPrefix + strconv.Itoa(int(p)) }

// ParsePageKey 解析 page_<i>；与 Key 互逆。
func ParsePageKey(s string) (PageID, error) {
	rest, ok := strings.CutPrefix(s, pageKeyPrefix)
	if !ok || rest == "" {
		return 0, fmt.Errorf("%w: page key %q", ErrNameInvalid, s)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || strconv.Itoa(n) != rest {
		return 0, fmt.Errorf("%w: page key %q", ErrNameInvalid, s)
	}
	return PageID(n), nil
}

// Page: 单页原始文本（保留抽取格式的 "\r\n" 行标记与控制字符）。
// 由 Extractor 一次性产出，之后只读。
type Page struct {
	ID   PageID
	Text string
}

// PageSize: 页面宽高（PDF 点）。
type PageSize struct {
	Width  float64
	Height float64
}

// Document: 按文档顺序排列的页集合。
type Document struct {
	Source string
	Size   PageSize
	Pages  []Page
}

// Page 按 PageID 查找页。
func (d Document) Page(id PageID) (Page, bool) {
	for _, p := range d.Pages {
		if p.ID == id {
			return p, true
		}
	}
	return Page{}, false
}

// ChunkKey: 块身份（页, 页内序号）。序号自 0 连续递增。
type ChunkKey struct {
	Page  PageID
	Index int
}

func (k ChunkKey) String() string { return fmt.Sprintf("%s_%d", k.Page.Key(), k.Index) }

// Less 按 (Page, Index) 升序。
func (k ChunkKey) Less(o ChunkKey) bool {
	if k.Page != o.Page {
		return k.Page < o.Page
	}
	return k.Index < o.Index
}

// SortKeys 原地按文档顺序排序。
func SortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// Chunk: 待翻译单元，至多 Size 句（默认 5），页内最后一块承载余数。
type Chunk struct {
	Key       ChunkKey
	Text      string
	Sentences int
}

// Range: 翻译区间。约束：StartPage <= EndPage；锚点短语须逐字出现在对应边界页。
type Range struct {
	StartPage PageID
	EndPage   PageID
	Begin     string
	End       string
}

// Contains 判断页是否位于区间内（闭区间）。
func (r Range) Contains(p PageID) bool { return p >= r.StartPage && p <= r.EndPage }

// Usage: 上游返回的用量与少量响应元信息。
type Usage struct {
	ID               string
	Model            string
	Created          int64
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Translation: 与源块同身份的译文。
type Translation struct {
	Key   ChunkKey
	Text  string
	Usage Usage
}
