package config

// templateYAML 为 --init-config 写出的“可运行”模板：
// - 默认使用 mock 翻译器（本地/离线调试友好），openai/eino 定义齐全，切换 translator 即可；
// - 选项给出全部键与安全中性默认值。
const templateYAML = `# pdftrans configuration
workdir: .
# input: paper.pdf          # empty: the single *.pdf in workdir
target_language: Traditional Chinese
delay_ms: 3000              # fixed pause between translate calls
max_chunks: 0               # 0 = no limit
on_error: skip              # skip | abort
resume: false
segment_size: 5
full_stop: "。"
bytes_per_token: 4

range:
  provider: prompt          # none | prompt | fixed
  on_abort: whole           # whole | halt
  # options: {begin: "Introduction", end: "Conclusion"}   # fixed only

logging:
  level: info
  dir: logs
  max_size_mb: 100
  max_backups: 3
  max_age_days: 28
  compress: false
  stderr: false

pricing:
  per_1k_tokens: 0.002

components:
  extractor: pdf
  tokenizer: punkt          # punkt | rule
  prompt_builder: translate
  store: fs

options:
  extractor:
    bounded: true
    margins: {left: 30, right: 30, top: 40, bottom: 30}
    normalize: nfc
    cross_check: true
  prompt_builder:
    source_language: English
    system: ""
    inline_glossary: ""
    glossary_path: ""
  store:
    merged_name: after/merge_translation.txt
    manifest: true

translator: mock
provider:
  mock:
    client: mock
    options: {prefix: MOCK, response_mode: sentences}
  openai:
    client: openai
    options:
      base_url: ""
      model: gpt-3.5-turbo
      api_key_env: OPENAI_API_KEY
      timeout_seconds: 60
      temperature: 0.2
      top_p: 1
      max_tokens: 1024
      proxy: ""
    limits: {rpm: 0, tpm: 0, max_tokens_per_req: 0}
  eino:
    client: eino
    options:
      model: gpt-3.5-turbo
      api_key_env: OPENAI_API_KEY
      timeout_seconds: 60
      max_tokens: 1024
`

// TemplateYAML 返回模板文本（含注释）。
func TemplateYAML() []byte { return []byte(templateYAML) }

// DefaultTemplateConfig 返回模板解析后的 Config。
func DefaultTemplateConfig() Config {
	cfg, err := LoadYAML("", TemplateYAML())
	if err != nil {
		panic("config template: " + err.Error())
	}
	return cfg
}
