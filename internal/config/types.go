package config

import (
	"gopkg.in/yaml.v3"

	"pdftrans/internal/diag"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	WorkDir        string `yaml:"workdir"`
	Input          string `yaml:"input,omitempty"`
	TargetLanguage string `yaml:"target_language"`
	// DelayMS: 相邻两次翻译调用的固定间隔；0 有语义（不等待），故用指针区分未设置。
	DelayMS   *int   `yaml:"delay_ms,omitempty"`
	MaxChunks int    `yaml:"max_chunks"`
	OnError   string `yaml:"on_error"`
	Resume    bool   `yaml:"resume"`
	// SegmentSize: 每块句数上限。
	SegmentSize   int    `yaml:"segment_size"`
	FullStop      string `yaml:"full_stop"`
	BytesPerToken int    `yaml:"bytes_per_token"`

	Range   Range           `yaml:"range"`
	Logging diag.LogOptions `yaml:"logging"`
	Pricing Pricing         `yaml:"pricing"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components"`
	// 各组件 Options 子树，原样传入工厂。
	Options Options `yaml:"options"`

	// 翻译 Provider 选择与定义。
	Translator string              `yaml:"translator"`
	Provider   map[string]Provider `yaml:"provider"`
}

// Range: 区间锚点来源与放弃策略。
type Range struct {
	Provider string     `yaml:"provider"` // none | prompt | fixed
	OnAbort  string     `yaml:"on_abort"` // whole | halt
	Options  *yaml.Node `yaml:"options,omitempty"`
}

// Pricing: 用量估价。
type Pricing struct {
	Per1KTokens *float64 `yaml:"per_1k_tokens,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Extractor     string `yaml:"extractor"`
	Tokenizer     string `yaml:"tokenizer"`
	PromptBuilder string `yaml:"prompt_builder"`
	Store         string `yaml:"store"`
}

// Options: 各组件的原样 YAML Options。
type Options struct {
	Extractor     *yaml.Node `yaml:"extractor,omitempty"`
	Tokenizer     *yaml.Node `yaml:"tokenizer,omitempty"`
	PromptBuilder *yaml.Node `yaml:"prompt_builder,omitempty"`
	Store         *yaml.Node `yaml:"store,omitempty"`
}

// Provider: 命名 provider 定义（translator 实现 + options + 限额）。
type Provider struct {
	Client  string     `yaml:"client"`
	Options *yaml.Node `yaml:"options,omitempty"`
	Limits  Limits     `yaml:"limits"`
}

// Limits: 限流配置（仅承载；执行位于 rate.Gate）。
type Limits struct {
	RPM             int `yaml:"rpm"`
	TPM             int `yaml:"tpm"`
	MaxTokensPerReq int `yaml:"max_tokens_per_req"`
}
