package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"pdftrans/internal/diag"
	"pdftrans/internal/usage"
)

// EnvPrefix 为环境变量覆盖的前缀。
const EnvPrefix = "PDFTRANS_"

// DefaultDelayMS: 两次翻译调用之间的缺省固定间隔。
const DefaultDelayMS = 3000

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Translator 不设默认（必须由 YAML/ENV/CLI 提供）。
func Defaults() Config {
	delay := DefaultDelayMS
	price := usage.DefaultPer1K
	return Config{
		WorkDir:        ".",
		TargetLanguage: "Traditional Chinese",
		DelayMS:        &delay,
		OnError:        "skip",
		SegmentSize:    5,
		FullStop:       "。",
		Range:          Range{Provider: "prompt", OnAbort: "whole"},
		Logging:        diag.LogOptions{Level: "info", Dir: "logs"},
		Pricing:        Pricing{Per1KTokens: &price},
		Components: Components{
			Extractor:     "pdf",
			Tokenizer:     "punkt",
			PromptBuilder: "translate",
			Store:         "fs",
		},
	}
}

// LoadYAML 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
func LoadYAML(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config yaml: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量与子树均为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	setStr(&out.WorkDir, over.WorkDir)
	setStr(&out.Input, over.Input)
	setStr(&out.TargetLanguage, over.TargetLanguage)
	if over.DelayMS != nil {
		v := *over.DelayMS
		out.DelayMS = &v
	}
	if over.MaxChunks != 0 {
		out.MaxChunks = over.MaxChunks
	}
	setStr(&out.OnError, over.OnError)
	if over.Resume {
		out.Resume = true
	}
	if over.SegmentSize != 0 {
		out.SegmentSize = over.SegmentSize
	}
	setStr(&out.FullStop, over.FullStop)
	if over.BytesPerToken != 0 {
		out.BytesPerToken = over.BytesPerToken
	}

	setStr(&out.Range.Provider, over.Range.Provider)
	setStr(&out.Range.OnAbort, over.Range.OnAbort)
	if over.Range.Options != nil {
		out.Range.Options = over.Range.Options
	}

	// Logging（逐字段，空不覆盖）
	setStr(&out.Logging.Level, over.Logging.Level)
	setStr(&out.Logging.Dir, over.Logging.Dir)
	if over.Logging.MaxSizeMB != 0 {
		out.Logging.MaxSizeMB = over.Logging.MaxSizeMB
	}
	if over.Logging.MaxBackups != 0 {
		out.Logging.MaxBackups = over.Logging.MaxBackups
	}
	if over.Logging.MaxAgeDays != 0 {
		out.Logging.MaxAgeDays = over.Logging.MaxAgeDays
	}
	if over.Logging.Compress {
		out.Logging.Compress = true
	}
	if over.Logging.Stderr {
		out.Logging.Stderr = true
	}

	if over.Pricing.Per1KTokens != nil {
		v := *over.Pricing.Per1KTokens
		out.Pricing.Per1KTokens = &v
	}

	// 组件名（空不覆盖）
	setStr(&out.Components.Extractor, over.Components.Extractor)
	setStr(&out.Components.Tokenizer, over.Components.Tokenizer)
	setStr(&out.Components.PromptBuilder, over.Components.PromptBuilder)
	setStr(&out.Components.Store, over.Components.Store)

	// Options（完整替换对应键）
	if over.Options.Extractor != nil {
		out.Options.Extractor = over.Options.Extractor
	}
	if over.Options.Tokenizer != nil {
		out.Options.Tokenizer = over.Options.Tokenizer
	}
	if over.Options.PromptBuilder != nil {
		out.Options.PromptBuilder = over.Options.PromptBuilder
	}
	if over.Options.Store != nil {
		out.Options.Store = over.Options.Store
	}

	// Provider（按字段合并对应键；ENV 常只覆盖其中一项）
	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			p := merged[k]
			setStr(&p.Client, v.Client)
			if v.Options != nil {
				p.Options = v.Options
			}
			if v.Limits.RPM != 0 {
				p.Limits.RPM = v.Limits.RPM
			}
			if v.Limits.TPM != 0 {
				p.Limits.TPM = v.Limits.TPM
			}
			if v.Limits.MaxTokensPerReq != 0 {
				p.Limits.MaxTokensPerReq = v.Limits.MaxTokensPerReq
			}
			merged[k] = p
		}
		out.Provider = merged
	}

	setStr(&out.Translator, over.Translator)
	return out
}

func setStr(dst *string, v string) {
	if t := strings.TrimSpace(v); t != "" {
		*dst = t
	}
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 PDFTRANS_；集合之外的键忽略；数值解析失败报错。
// 支持：WORKDIR, INPUT, TARGET_LANGUAGE, DELAY_MS, MAX_CHUNKS, ON_ERROR, RESUME,
// TRANSLATOR, LOG_LEVEL, LOG_DIR, RANGE, ON_ABORT, PRICE_PER_1K
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__OPTIONS / PROVIDER__<name>__{RPM,TPM,MAX_TOKENS_PER_REQ}
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			// 空值视为未设置，避免清空文件配置
			continue
		}
		var err error
		switch key {
		case "WORKDIR":
			over.WorkDir = val
		case "INPUT":
			over.Input = val
		case "TARGET_LANGUAGE":
			over.TargetLanguage = val
		case "DELAY_MS":
			var v int
			if v, err = strconv.Atoi(val); err == nil {
				over.DelayMS = &v
			}
		case "MAX_CHUNKS":
			over.MaxChunks, err = strconv.Atoi(val)
		case "ON_ERROR":
			over.OnError = val
		case "RESUME":
			over.Resume, err = strconv.ParseBool(val)
		case "TRANSLATOR":
			over.Translator = val
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "RANGE":
			over.Range.Provider = val
		case "ON_ABORT":
			over.Range.OnAbort = val
		case "PRICE_PER_1K":
			var v float64
			if v, err = strconv.ParseFloat(val, 64); err == nil {
				over.Pricing.Per1KTokens = &v
			}
		default:
			if strings.HasPrefix(key, "PROVIDER__") {
				err = providerEnv(prov, strings.TrimPrefix(key, "PROVIDER__"), val)
			}
		}
		if err != nil {
			return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

// providerEnv 解析 <name>__<FIELD>。name 按小写归一。
func providerEnv(prov map[string]Provider, rest, val string) error {
	i := strings.Index(rest, "__")
	if i <= 0 {
		return nil
	}
	name := strings.ToLower(rest[:i])
	p := prov[name]
	var err error
	switch rest[i+2:] {
	case "CLIENT":
		p.Client = val
	case "OPTIONS":
		// YAML 或 JSON 文本
		var n yaml.Node
		if err = yaml.Unmarshal([]byte(val), &n); err == nil && len(n.Content) == 1 {
			p.Options = n.Content[0]
		}
	case "RPM":
		p.Limits.RPM, err = strconv.Atoi(val)
	case "TPM":
		p.Limits.TPM, err = strconv.Atoi(val)
	case "MAX_TOKENS_PER_REQ":
		p.Limits.MaxTokensPerReq, err = strconv.Atoi(val)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	prov[name] = p
	return nil
}
