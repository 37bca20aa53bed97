package segment

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"pdftrans/pkg/contract"
)

// Punkt: 基于 Punkt 无监督模型的英文句子切分（内置英文训练数据）。
type Punkt struct {
	tok *sentences.DefaultSentenceTokenizer
}

// NewPunkt 加载内置英文模型。
func NewPunkt() (*Punkt, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("punkt: load english model: %w", err)
	}
	return &Punkt{tok: tok}, nil
}

// Sentences 实现 contract.Tokenizer。
func (p *Punkt) Sentences(text string) ([]string, error) {
	if p == nil || p.tok == nil {
		return nil, fmt.Errorf("%w: punkt not initialised", contract.ErrSegmentationFailed)
	}
	var out []string
	for _, s := range p.tok.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// Rule: 规则句界切分。句末标点后跟空白且下一个字符非小写时断句；
// 单个大写字母后的句点（姓名缩写）不断句。不依赖模型，结果稳定。
type Rule struct{}

// Sentences 实现 contract.Tokenizer。
func (Rule) Sentences(text string) ([]string, error) {
	var out []string
	rs := []rune(text)
	start := 0
	flush := func(end int) {
		if t := strings.TrimSpace(string(rs[start:end])); t != "" {
			out = append(out, t)
		}
		start = end
	}
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// 吞掉连续句末标点与右引号/括号
		j := i + 1
		for j < len(rs) && strings.ContainsRune(".!?\"')]", rs[j]) {
			j++
		}
		if j < len(rs) && !unicode.IsSpace(rs[j]) {
			i = j - 1
			continue
		}
		k := j
		for k < len(rs) && unicode.IsSpace(rs[k]) {
			k++
		}
		if k < len(rs) && unicode.IsLower(rs[k]) {
			i = j - 1
			continue
		}
		if r == '.' && initialBefore(rs, i) {
			i = j - 1
			continue
		}
		flush(j)
		i = j - 1
	}
	flush(len(rs))
	return out, nil
}

// initialBefore: rs[i] 为句点且前面是孤立的单个大写字母。
func initialBefore(rs []rune, i int) bool {
	if i < 1 || !unicode.IsUpper(rs[i-1]) {
		return false
	}
	return i < 2 || unicode.IsSpace(rs[i-2])
}

var (
	_ contract.Tokenizer = (*Punkt)(nil)
	_ contract.Tokenizer = Rule{}
)
