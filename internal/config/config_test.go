package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"pdftrans/internal/pipeline"
)

// TestLoadYAMLStrict 未知字段应失败。
func TestLoadYAMLStrict(t *testing.T) {
	if _, err := LoadYAML("", []byte("workdir: x\nbogus: 1\n")); err == nil {
		t.Fatalf("未知字段应报错")
	}
	if _, err := LoadYAML("", nil); err == nil {
		t.Fatalf("无来源应报错")
	}
	p := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(p, []byte("translator: mock\ndelay_ms: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadYAML(p, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Translator != "mock" || cfg.DelayMS == nil || *cfg.DelayMS != 0 {
		t.Fatalf("unexpected: %+v", cfg)
	}
}

// TestMergeAndEnv 覆盖优先级：默认 < 文件 < 环境。
func TestMergeAndEnv(t *testing.T) {
	file, err := LoadYAML("", []byte(`
translator: openai
max_chunks: 2
provider:
  openai:
    client: openai
    options: {model: gpt-4o-mini}
    limits: {rpm: 10}
`))
	if err != nil {
		t.Fatal(err)
	}
	env, err := EnvOverlay([]string{
		"PDFTRANS_DELAY_MS=0",
		"PDFTRANS_TARGET_LANGUAGE=Japanese",
		"PDFTRANS_PROVIDER__OPENAI__TPM=4000",
		"PDFTRANS_PROVIDER__MOCK__CLIENT=mock",
		"PDFTRANS_LOG_LEVEL=",
		"OTHER=1",
	})
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	cfg := Merge(Merge(Defaults(), file), env)
	if cfg.TargetLanguage != "Japanese" || *cfg.DelayMS != 0 || cfg.MaxChunks != 2 {
		t.Fatalf("scalars: %+v", cfg)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("空 ENV 不应覆盖: %q", cfg.Logging.Level)
	}
	op := cfg.Provider["openai"]
	if op.Client != "openai" || op.Limits.RPM != 10 || op.Limits.TPM != 4000 || op.Options == nil {
		t.Fatalf("provider 合并错误: %+v", op)
	}
	if cfg.Provider["mock"].Client != "mock" {
		t.Fatalf("env provider 缺失")
	}
	if _, err := EnvOverlay([]string{"PDFTRANS_MAX_CHUNKS=lots"}); err == nil {
		t.Fatalf("非法数值应报错")
	}
}

func TestEnvProviderOptions(t *testing.T) {
	over, err := EnvOverlay([]string{`PDFTRANS_PROVIDER__MOCK__OPTIONS={"prefix":"X"}`})
	if err != nil {
		t.Fatal(err)
	}
	n := over.Provider["mock"].Options
	if n == nil || len(n.Content) != 2 || n.Content[1].Value != "X" {
		t.Fatalf("options node: %+v", n)
	}
}

func TestValidate(t *testing.T) {
	good := DefaultTemplateConfig()
	if err := Validate(Merge(Defaults(), good)); err != nil {
		t.Fatalf("模板应通过校验: %v", err)
	}
	cases := map[string]func(c *Config){
		"no translator":   func(c *Config) { c.Translator = "" },
		"missing prov":    func(c *Config) { c.Translator = "nope" },
		"bad client":      func(c *Config) { c.Provider["mock"] = Provider{Client: "gemini"} },
		"on_error":        func(c *Config) { c.OnError = "retry" },
		"on_abort":        func(c *Config) { c.Range.OnAbort = "ask" },
		"range provider":  func(c *Config) { c.Range.Provider = "mouse" },
		"negative delay":  func(c *Config) { d := -1; c.DelayMS = &d },
		"tokenizer":       func(c *Config) { c.Components.Tokenizer = "nltk" },
		"empty target":    func(c *Config) { c.TargetLanguage = " " },
		"negative chunks": func(c *Config) { c.MaxChunks = -1 },
	}
	for name, mut := range cases {
		c := Merge(Defaults(), DefaultTemplateConfig())
		mut(&c)
		if err := Validate(c); err == nil {
			t.Errorf("%s: 应校验失败", name)
		}
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	cfg := Merge(Defaults(), DefaultTemplateConfig())
	cfg.WorkDir = dir
	cfg.Components.Tokenizer = "rule"
	cfg.OnError = "abort"
	comp, set, err := Assemble(cfg, Env{RunID: "r"})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if comp.Extractor == nil || comp.Segmenter == nil || comp.Store == nil || comp.Prompt == nil || comp.Translator == nil {
		t.Fatalf("components incomplete: %+v", comp)
	}
	if comp.Range == nil {
		t.Fatalf("缺省区间来源应为 prompt")
	}
	if comp.Segmenter.Size != 5 {
		t.Fatalf("segment size %d", comp.Segmenter.Size)
	}
	if set.Gate == nil || set.Gate.Limits().Interval != 3*time.Second {
		t.Fatalf("gate interval: %+v", set.Gate)
	}
	if set.Target != "Traditional Chinese" || set.OnError != pipeline.OnErrorAbort || set.OnAbort != pipeline.OnAbortWhole {
		t.Fatalf("settings: %+v", set)
	}
	if set.PricePer1K != 0.002 || set.WorkDir != dir {
		t.Fatalf("settings: %+v", set)
	}

	cfg.Options.Store = DefaultTemplateConfig().Options.Extractor // 错误的选项子树
	if _, _, err := Assemble(cfg, Env{}); err == nil || !strings.Contains(err.Error(), "store") {
		t.Fatalf("store 未知字段应报错: %v", err)
	}
}

// TestAssembleMaxOutputTokens 补全预算来自当前 provider 的 max_tokens。
func TestAssembleMaxOutputTokens(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "k")
	cfg := Merge(Defaults(), DefaultTemplateConfig())
	cfg.WorkDir = t.TempDir()
	cfg.Components.Tokenizer = "rule"

	_, set, err := Assemble(cfg, Env{})
	if err != nil || set.MaxOutputTokens != 0 {
		t.Fatalf("mock: %d %v", set.MaxOutputTokens, err)
	}

	cfg.Translator = "openai"
	_, set, err = Assemble(cfg, Env{})
	if err != nil || set.MaxOutputTokens != 1024 {
		t.Fatalf("template openai: %d %v", set.MaxOutputTokens, err)
	}

	var n yaml.Node
	if err := yaml.Unmarshal([]byte("{model: gpt-4o-mini, max_tokens: 300}"), &n); err != nil {
		t.Fatal(err)
	}
	cfg.Provider["openai"] = Provider{Client: "openai", Options: n.Content[0]}
	_, set, err = Assemble(cfg, Env{})
	if err != nil || set.MaxOutputTokens != 300 {
		t.Fatalf("configured: %d %v", set.MaxOutputTokens, err)
	}

	cfg.Provider["openai"] = Provider{Client: "openai"}
	_, set, err = Assemble(cfg, Env{})
	if err != nil || set.MaxOutputTokens != DefaultMaxOutputTokens {
		t.Fatalf("unset: %d %v", set.MaxOutputTokens, err)
	}
}

func TestTemplateText(t *testing.T) {
	if !strings.Contains(string(TemplateYAML()), "delay_ms: 3000") {
		t.Fatalf("模板缺少 delay_ms")
	}
}
