// Package pdf 实现 contract.Extractor：逐页按行抽取固定内容框内的文本。
package pdf

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/text/unicode/norm"

	"pdftrans/pkg/contract"
)

// Margins: 内容框相对页边的留白（PDF 点，原点在左下角）。
type Margins struct {
	Left   float64 `yaml:"left"`
	Right  float64 `yaml:"right"`
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
}

// LetterSize: MediaBox 缺失时的回退尺寸。
var LetterSize = contract.PageSize{Width: 612, Height: 792}

// DefaultMargins: 排除页眉页脚与装订边。
var DefaultMargins = Margins{Left: 30, Right: 30, Top: 40, Bottom: 30}

// Options: 抽取选项。
type Options struct {
	// Bounded: 是否按内容框过滤；nil 视为 true。false 时保留整页文本。
	Bounded *bool `yaml:"bounded,omitempty"`
	// Margins: 为 nil 使用 DefaultMargins。
	Margins *Margins `yaml:"margins,omitempty"`
	// Normalize: nfc | nfkc | none，默认 nfc。
	Normalize string `yaml:"normalize,omitempty"`
	// CrossCheck: 以 pdfcpu 读取页数并与文本解析器比对；nil 视为 true。
	CrossCheck *bool `yaml:"cross_check,omitempty"`
}

// Box: 保留区域（闭区间）。
type Box struct {
	MinX, MaxX, MinY, MaxY float64
}

// BoxFor 由页面尺寸与留白计算内容框。
func BoxFor(size contract.PageSize, m Margins) Box {
	return Box{MinX: m.Left, MaxX: size.Width - m.Right, MinY: m.Bottom, MaxY: size.Height - m.Top}
}

func (b Box) contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Item: 单个定位文本片段。
type Item struct {
	X, Y float64
	S    string
}

// pageSource: 文本解析器的最小视图（页号自 1 起）。
type pageSource interface {
	NumPage() int
	Rows(i int) ([][]Item, error)
	Size(i int) (contract.PageSize, bool)
}

// counter: 独立的页数来源，用于交叉校验。
type counter func(path string) (int, error)

// Extractor: 基于 ledongthuc/pdf 的抽取器。
type Extractor struct {
	bounded bool
	margins Margins
	form    string
	count   counter
	open    func(path string) (pageSource, func() error, error)
}

// New 构造 Extractor。
func New(opts *Options) (*Extractor, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	e := &Extractor{bounded: true, margins: DefaultMargins, form: "nfc", open: openLedongthuc}
	if o.Bounded != nil {
		e.bounded = *o.Bounded
	}
	if o.Margins != nil {
		e.margins = *o.Margins
	}
	switch strings.ToLower(strings.TrimSpace(o.Normalize)) {
	case "", "nfc":
	case "nfkc":
		e.form = "nfkc"
	case "none":
		e.form = "none"
	default:
		return nil, fmt.Errorf("%w: normalize %q", contract.ErrInvalidInput, o.Normalize)
	}
	if o.CrossCheck == nil || *o.CrossCheck {
		e.count = pdfcpuPageCount
	}
	return e, nil
}

var _ contract.Extractor = (*Extractor)(nil)

// Extract 实现 contract.Extractor。第一页的 MediaBox 作为全篇的标准页面尺寸。
func (e *Extractor) Extract(ctx context.Context, path string) (doc contract.Document, err error) {
	defer func() {
		// 解析库在畸形输入上可能 panic
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", contract.ErrExtractionFailed, path, r)
		}
	}()
	src, closeFn, err := e.open(path)
	if err != nil {
		return doc, fmt.Errorf("%w: open %s: %v", contract.ErrExtractionFailed, path, err)
	}
	defer closeFn()

	n := src.NumPage()
	if e.count != nil {
		want, err := e.count(path)
		if err != nil {
			return doc, fmt.Errorf("%w: page count %s: %v", contract.ErrExtractionFailed, path, err)
		}
		if want != n {
			return doc, fmt.Errorf("%w: %s has %d pages, text parser sees %d", contract.ErrPageMismatch, path, want, n)
		}
	}
	doc.Source = path
	doc.Size = LetterSize
	if n > 0 {
		if size, ok := src.Size(1); ok && size.Width > 0 && size.Height > 0 {
			doc.Size = size
		}
	}
	box := BoxFor(doc.Size, e.margins)
	doc.Pages = make([]contract.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		rows, err := src.Rows(i)
		if err != nil {
			return doc, fmt.Errorf("%w: %s page %d: %v", contract.ErrExtractionFailed, path, i, err)
		}
		text := e.pageText(rows, box)
		doc.Pages = append(doc.Pages, contract.Page{ID: contract.PageID(i - 1), Text: text})
	}
	return doc, nil
}

// pageText 过滤内容框外的片段，行内直接拼接，行间以 "\r\n" 连接。
func (e *Extractor) pageText(rows [][]Item, box Box) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, it := range row {
			if e.bounded && !box.contains(it.X, it.Y) {
				continue
			}
			b.WriteString(it.S)
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	text := strings.Join(lines, "\r\n")
	switch e.form {
	case "nfc":
		return norm.NFC.String(text)
	case "nfkc":
		return norm.NFKC.String(text)
	default:
		return text
	}
}

// pdfcpuPageCount 以 pdfcpu 读取文档结构并返回页数。
func pdfcpuPageCount(path string) (int, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}

// ledongthuc 适配 -------------------------------------------------

type ledongthuc struct{ r *lpdf.Reader }

func openLedongthuc(path string) (pageSource, func() error, error) {
	f, r, err := lpdf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return ledongthuc{r: r}, f.Close, nil
}

func (l ledongthuc) NumPage() int { return l.r.NumPage() }

func (l ledongthuc) Rows(i int) ([][]Item, error) {
	p := l.r.Page(i)
	if p.V.IsNull() {
		return nil, nil
	}
	return groupRows(p.Content().Text), nil
}

// groupRows 按基线（取整后的 Y）归行：行自上而下，行内自左向右。
// Content 逐字形给出位置（跟踪 Tm、Td、TD、T* 与 cm）；X 相同的字形保持流内顺序。
func groupRows(glyphs []lpdf.Text) [][]Item {
	byY := make(map[float64][]lpdf.Text)
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		y := math.Round(g.Y)
		byY[y] = append(byY[y], g)
	}
	ys := make([]float64, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))
	out := make([][]Item, 0, len(ys))
	for _, y := range ys {
		row := byY[y]
		sort.SliceStable(row, func(a, b int) bool { return row[a].X < row[b].X })
		items := make([]Item, 0, len(row))
		for k, g := range row {
			s := g.S
			if k > 0 && wordGap(row[k-1], g) {
				s = " " + s
			}
			items = append(items, Item{X: g.X, Y: g.Y, S: s})
		}
		out = append(out, items)
	}
	return out
}

// wordGap: 相邻字形间距超过四分之一字号且两侧均无空白时视为词间隔。
func wordGap(prev, next lpdf.Text) bool {
	if prev.W <= 0 || strings.HasSuffix(prev.S, " ") || strings.HasPrefix(next.S, " ") {
		return false
	}
	return next.X-(prev.X+prev.W) > 0.25*next.FontSize
}

// maxTreeDepth 限制 /Parent 回溯深度，防止畸形文件成环。
const maxTreeDepth = 64

// Size 返回页面 MediaBox；页面未声明时沿 /Parent 向上查找继承值。
func (l ledongthuc) Size(i int) (contract.PageSize, bool) {
	v := l.r.Page(i).V
	for d := 0; d < maxTreeDepth && !v.IsNull(); d++ {
		box := v.Key("MediaBox")
		if box.Kind() == lpdf.Array && box.Len() >= 4 {
			return contract.PageSize{
				Width:  box.Index(2).Float64() - box.Index(0).Float64(),
				Height: box.Index(3).Float64() - box.Index(1).Float64(),
			}, true
		}
		v = v.Key("Parent")
	}
	return contract.PageSize{}, false
}
