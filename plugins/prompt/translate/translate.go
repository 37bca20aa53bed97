package translate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"pdftrans/pkg/contract"
)

// Options: 单块翻译提示词配置。
// InlineTemplate / TemplatePath 二选一，均为空时使用内置模板。
type Options struct {
	InlineTemplate string `yaml:"inline_template"`
	TemplatePath   string `yaml:"template_path"`
	// SourceLanguage: 原文语言，默认 English。
	SourceLanguage string `yaml:"source_language"`
	// System: 可选 system 消息。
	System string `yaml:"system"`
	// 术语对照表（可选），以 <glossary> 包裹追加到 system 消息尾部。
	InlineGlossary string `yaml:"inline_glossary"`
	GlossaryPath   string `yaml:"glossary_path"`
}

// Builder: 以单块文本构造会话消息。模板在构造期解析，运行期不做 I/O。
type Builder struct {
	tpl    *template.Template
	source string
	system string
}

// data: 模板可用字段。
type data struct {
	Source string
	Target string
	Text   string
}

// New 创建 Builder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	src := defaultTemplate
	if o.InlineTemplate != "" {
		src = o.InlineTemplate
	} else if o.TemplatePath != "" {
		b, err := os.ReadFile(o.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("prompt template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("prompt").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("prompt template parse: %w", err)
	}
	glos := o.InlineGlossary
	if glos == "" && o.GlossaryPath != "" {
		b, err := os.ReadFile(o.GlossaryPath)
		if err != nil {
			return nil, fmt.Errorf("glossary read: %w", err)
		}
		glos = string(b)
	}
	source := strings.TrimSpace(o.SourceLanguage)
	if source == "" {
		source = "English"
	}
	return &Builder{tpl: tpl, source: source, system: withGlossary(o.System, glos)}, nil
}

func withGlossary(sys, glos string) string {
	if glos == "" {
		return sys
	}
	var b strings.Builder
	b.WriteString(sys)
	if sys != "" {
		b.WriteString("\n\n")
	}
	b.WriteString("<glossary>\n")
	b.WriteString(glos)
	if !strings.HasSuffix(glos, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("</glossary>")
	return b.String()
}

// Build 渲染 user 消息；配置了 system 或术语表时前置 system 消息。
func (b *Builder) Build(ctx context.Context, req contract.Request) ([]contract.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("prompt: %w: empty chunk %s", contract.ErrInvalidInput, req.Key)
	}
	if strings.TrimSpace(req.Target) == "" {
		return nil, fmt.Errorf("prompt: %w: target language required", contract.ErrInvalidInput)
	}
	var buf bytes.Buffer
	if err := b.tpl.Execute(&buf, data{Source: b.source, Target: req.Target, Text: req.Text}); err != nil {
		return nil, fmt.Errorf("prompt render: %w: %v", contract.ErrInvalidInput, err)
	}
	msgs := make([]contract.Message, 0, 2)
	if b.system != "" {
		msgs = append(msgs, contract.Message{Role: "system", Content: b.system})
	}
	return append(msgs, contract.Message{Role: "user", Content: buf.String()}), nil
}

var _ contract.PromptBuilder = (*Builder)(nil)

const defaultTemplate = `Please translate the text from {{.Source}} to {{.Target}}, and return only translated text, not include the origin text, here is the text: {{.Text}}`
