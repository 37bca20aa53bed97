package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pdftrans/internal/pipeline"
	"pdftrans/internal/rate"
	"pdftrans/internal/segment"
	"pdftrans/internal/usage"
	"pdftrans/pkg/registry"
)

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return errors.New("config: workdir empty")
	}
	if strings.TrimSpace(cfg.TargetLanguage) == "" {
		return errors.New("config: target_language empty")
	}
	if cfg.DelayMS != nil && *cfg.DelayMS < 0 {
		return errors.New("config: delay_ms must be >= 0")
	}
	if cfg.MaxChunks < 0 {
		return errors.New("config: max_chunks must be >= 0")
	}
	if cfg.SegmentSize < 0 {
		return errors.New("config: segment_size must be >= 0")
	}
	if cfg.Pricing.Per1KTokens != nil && *cfg.Pricing.Per1KTokens < 0 {
		return errors.New("config: pricing.per_1k_tokens must be >= 0")
	}
	switch effName(cfg.OnError, pipeline.OnErrorSkip) {
	case pipeline.OnErrorSkip, pipeline.OnErrorAbort:
	default:
		return fmt.Errorf("config: on_error %q (want skip|abort)", cfg.OnError)
	}
	switch effName(cfg.Range.OnAbort, pipeline.OnAbortWhole) {
	case pipeline.OnAbortWhole, pipeline.OnAbortHalt:
	default:
		return fmt.Errorf("config: range.on_abort %q (want whole|halt)", cfg.Range.OnAbort)
	}
	if cfg.Translator == "" {
		return errors.New("config: translator not set")
	}
	prov, ok := cfg.Provider[cfg.Translator]
	if !ok {
		return fmt.Errorf("config: provider %q not found", cfg.Translator)
	}
	if prov.Client == "" {
		return fmt.Errorf("config: provider %q missing client", cfg.Translator)
	}
	if registry.Translator[prov.Client] == nil {
		return fmt.Errorf("config: translator client %q not registered", prov.Client)
	}
	d := Defaults()
	if name := effName(cfg.Components.Extractor, d.Components.Extractor); registry.Extractor[name] == nil {
		return fmt.Errorf("config: extractor %q not registered", name)
	}
	if name := effName(cfg.Components.Tokenizer, d.Components.Tokenizer); registry.Tokenizer[name] == nil {
		return fmt.Errorf("config: tokenizer %q not registered", name)
	}
	if name := effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder); registry.PromptBuilder[name] == nil {
		return fmt.Errorf("config: prompt_builder %q not registered", name)
	}
	if name := effName(cfg.Components.Store, d.Components.Store); registry.Store[name] == nil {
		return fmt.Errorf("config: store %q not registered", name)
	}
	if name := effName(cfg.Range.Provider, d.Range.Provider); registry.RangeProvider[name] == nil {
		return fmt.Errorf("config: range provider %q not registered", name)
	}
	return nil
}

// Env: 运行期注入、不来自配置的参数。
type Env struct {
	RunID string
}

// Assemble 构造 Components 与 Settings（含限流 Gate）。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样节点。
func Assemble(cfg Config, env Env) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	d := Defaults()
	fail := func(what string, err error) (pipeline.Components, pipeline.Settings, error) {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("assemble %s: %w", what, err)
	}

	ext, err := registry.Extractor[effName(cfg.Components.Extractor, d.Components.Extractor)](cfg.Options.Extractor)
	if err != nil {
		return fail("extractor", err)
	}
	tok, err := registry.Tokenizer[effName(cfg.Components.Tokenizer, d.Components.Tokenizer)](cfg.Options.Tokenizer)
	if err != nil {
		return fail("tokenizer", err)
	}
	pb, err := registry.PromptBuilder[effName(cfg.Components.PromptBuilder, d.Components.PromptBuilder)](cfg.Options.PromptBuilder)
	if err != nil {
		return fail("prompt_builder", err)
	}
	st, err := registry.Store[effName(cfg.Components.Store, d.Components.Store)](cfg.Options.Store, registry.StoreEnv{Root: cfg.WorkDir, RunID: env.RunID})
	if err != nil {
		return fail("store", err)
	}
	rp, err := registry.RangeProvider[effName(cfg.Range.Provider, d.Range.Provider)](cfg.Range.Options)
	if err != nil {
		return fail("range provider", err)
	}
	prov := cfg.Provider[cfg.Translator]
	tr, err := registry.Translator[prov.Client](prov.Options)
	if err != nil {
		return fail("translator", err)
	}

	comp := pipeline.Components{
		Extractor:  ext,
		Segmenter:  segment.New(tok, cfg.SegmentSize),
		Range:      rp,
		Store:      st,
		Prompt:     pb,
		Translator: tr,
	}

	delay := DefaultDelayMS
	if cfg.DelayMS != nil {
		delay = *cfg.DelayMS
	}
	gate := rate.NewGate(rate.Limits{
		RPM:             prov.Limits.RPM,
		TPM:             prov.Limits.TPM,
		MaxTokensPerReq: prov.Limits.MaxTokensPerReq,
		Interval:        time.Duration(delay) * time.Millisecond,
	}, nil)
	price := usage.DefaultPer1K
	if cfg.Pricing.Per1KTokens != nil {
		price = *cfg.Pricing.Per1KTokens
	}

	set := pipeline.Settings{
		WorkDir:       cfg.WorkDir,
		Input:         cfg.Input,
		Target:        cfg.TargetLanguage,
		OnAbort:       effName(cfg.Range.OnAbort, pipeline.OnAbortWhole),
		OnError:       effName(cfg.OnError, pipeline.OnErrorSkip),
		MaxChunks:     cfg.MaxChunks,
		Resume:        cfg.Resume,
		Gate:          gate,
		BytesPerToken: cfg.BytesPerToken,
		FullStop:      cfg.FullStop,
		PricePer1K:    price,
		Translator:    cfg.Translator,
	}
	set.MaxOutputTokens, err = maxOutputTokens(prov)
	if err != nil {
		return fail("translator", err)
	}
	return comp, set, nil
}

// DefaultMaxOutputTokens: 远端客户端未配置 max_tokens 时的补全预算，与两个客户端的缺省一致。
const DefaultMaxOutputTokens = 1024

// maxOutputTokens 取当前 provider 的补全上限，供限流按“输入+预期输出”计费。
// mock 等本地客户端不产生计费输出，记 0。
func maxOutputTokens(p Provider) (int, error) {
	var o struct {
		MaxTokens int `yaml:"max_tokens"`
	}
	if p.Options != nil {
		if err := p.Options.Decode(&o); err != nil {
			return 0, err
		}
	}
	if o.MaxTokens > 0 {
		return o.MaxTokens, nil
	}
	switch p.Client {
	case "openai", "eino":
		return DefaultMaxOutputTokens, nil
	}
	return 0, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
