package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	cfgpkg "pdftrans/internal/config"
	"pdftrans/internal/diag"
	"pdftrans/internal/pipeline"
)

var pipelineRun = pipeline.RunSteps

// 退出码
const (
	exitOK     = 0
	exitRun    = 1
	exitUsage  = 2
	exitConfig = 3
)

// DefaultConfigFile 为工作目录下缺省读取的配置文件名。
const DefaultConfigFile = "pdftrans.yaml"

// 子命令 → 阶段。usage 不执行任何阶段，只汇总已有日志。
var commands = map[string][]pipeline.Step{
	"run":       {pipeline.StepExtract, pipeline.StepTranslate, pipeline.StepMerge},
	"extract":   {pipeline.StepExtract},
	"translate": {pipeline.StepTranslate},
	"merge":     {pipeline.StepMerge},
	"usage":     nil,
}

// pdftrans [run|extract|translate|merge|usage] [flags]
// 缺省子命令为 run。
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前加载 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	logger, _ := diag.NewLogger(corrID, &diag.LogOptions{Level: "info"})
	defer func() { _ = logger.Close() }()

	cmd, args := splitCommand(os.Args)
	os.Args = args

	var (
		flagConfig     string
		flagTranslator string
		flagInput      string
		flagWorkDir    string
		flagTarget     string
		flagOnError    string
		flagRange      string
		flagMaxChunks  int
		flagDelayMS    int
		flagResume     bool
		flagInitDir    string
		flagStatus     bool
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（YAML）；缺省读取 ./"+DefaultConfigFile+"（若存在）")
	flag.StringVar(&flagTranslator, "translator", "", "provider 名称（覆盖配置）")
	flag.StringVar(&flagInput, "input", "", "输入 PDF；缺省为 workdir 下唯一的 *.pdf")
	flag.StringVar(&flagWorkDir, "workdir", "", "工作目录（before/ after/ 所在）")
	flag.StringVar(&flagTarget, "target", "", "目标语言")
	flag.StringVar(&flagOnError, "on-error", "", "单块失败策略 skip|abort")
	flag.StringVar(&flagRange, "range", "", "区间来源 none|prompt|fixed")
	flag.IntVar(&flagMaxChunks, "max-chunks", 0, "本次最多翻译的块数（0 不限）")
	// delay-ms 允许显式设置为 0；-1 表示未覆盖。
	flag.IntVar(&flagDelayMS, "delay-ms", -1, "两次翻译调用之间的固定间隔（毫秒）")
	flag.BoolVar(&flagResume, "resume", false, "保留已有译文，仅翻译缺失的块")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成 "+DefaultConfigFile+" 与 .env 模板（不覆盖）；不带值时为当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）")
	normalizeInitArg()
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		return exitUsage
	}
	rest := flag.Args()
	if cmd == "" && len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	if cmd == "" {
		cmd = "run"
	}
	steps, ok := commands[cmd]
	if !ok || len(rest) > 0 {
		fprintf(os.Stderr, "用法: pdftrans [run|extract|translate|merge|usage] [flags]\n")
		return exitUsage
	}

	if dir := strings.TrimSpace(flagInitDir); dir != "" {
		if err := initConfig(dir); err != nil {
			fprintf(os.Stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "init config", &start)
			return exitConfig
		}
		return exitOK
	}

	// YAML 配置（文件或 ENV: PDFTRANS_CONFIG_YAML）
	var cfgYAML []byte
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_YAML"); s != "" {
		cfgYAML = []byte(s)
	}
	if flagConfig == "" {
		flagConfig = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if flagConfig == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			flagConfig = DefaultConfigFile
		}
	}

	cfg := cfgpkg.Defaults()
	if flagConfig != "" || len(cfgYAML) > 0 {
		base, err := cfgpkg.LoadYAML(flagConfig, cfgYAML)
		if err != nil {
			fprintf(os.Stderr, "配置解析失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "load", &start)
			return exitConfig
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		fprintf(os.Stderr, "环境变量解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "env", &start)
		return exitConfig
	}
	cfg = cfgpkg.Merge(cfg, overEnv)

	// CLI 覆盖
	overCLI := cfgpkg.Config{
		Translator:     flagTranslator,
		Input:          flagInput,
		WorkDir:        flagWorkDir,
		TargetLanguage: flagTarget,
		OnError:        flagOnError,
		MaxChunks:      flagMaxChunks,
		Resume:         flagResume,
	}
	overCLI.Range.Provider = flagRange
	if flagDelayMS >= 0 {
		overCLI.DelayMS = &flagDelayMS
	}
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(os.Stderr, "配置校验失败: %v\n", err)
		_ = dumpConfig(os.Stderr, cfg)
		logger.Error("config", string(diag.Classify(err)), "validate", &start)
		return exitConfig
	}

	// 使用最终日志配置重建 logger
	final, err := diag.NewLogger(corrID, &cfg.Logging)
	if err != nil {
		fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		return exitConfig
	}
	_ = logger.Close()
	logger = final

	if err := preflightWorkDir(cfg.WorkDir); err != nil {
		fprintf(os.Stderr, "工作目录不可写或无法创建: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "preflight", &start)
		return exitConfig
	}

	comp, set, err := cfgpkg.Assemble(cfg, cfgpkg.Env{RunID: corrID})
	if err != nil {
		fprintf(os.Stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "assemble", &start)
		return exitConfig
	}
	set.Term = diag.NewTerminal(os.Stderr, flagStatus)
	logger.Debug("config", "effective", "", effectiveKV(cmd, cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	t := logger.Start("pipeline", cmd)
	rep, err := pipelineRun(ctx, comp, set, logger, steps...)
	if err != nil {
		logger.Error("pipeline", string(diag.Classify(err)), "first error", &start)
		if !errors.Is(err, context.Canceled) {
			fprintf(os.Stderr, "运行失败: %v\n", err)
		}
		return exitRun
	}
	t.Finish(cmd, int64(rep.Translated))
	if n := len(rep.Failed); n > 0 {
		fprintf(os.Stderr, "%d 个单元失败（已跳过）\n", n)
		for _, ue := range rep.Failed {
			fprintf(os.Stderr, "  %v\n", ue)
		}
	}
	if cmd == "run" || cmd == "usage" {
		if err := rep.Usage.Write(os.Stdout); err != nil {
			return exitRun
		}
	}
	return exitOK
}

// splitCommand 取出首个非开关参数作为子命令，使子命令之后的旗标仍可解析。
func splitCommand(args []string) (string, []string) {
	if len(args) < 2 || strings.HasPrefix(args[1], "-") {
		return "", args
	}
	if _, ok := commands[args[1]]; !ok {
		return "", args
	}
	out := make([]string, 0, len(args)-1)
	out = append(out, args[0])
	out = append(out, args[2:]...)
	return args[1], out
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func dumpConfig(w io.Writer, c cfgpkg.Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "有效配置:\n%s", b)
	return err
}

// effectiveKV 提取可记录的运行配置（不含密钥）。
func effectiveKV(cmd string, cfg cfgpkg.Config) map[string]string {
	kv := map[string]string{
		"command":         cmd,
		"workdir":         cfg.WorkDir,
		"input":           cfg.Input,
		"target_language": cfg.TargetLanguage,
		"max_chunks":      strconv.Itoa(cfg.MaxChunks),
		"on_error":        cfg.OnError,
		"range":           cfg.Range.Provider,
		"translator":      cfg.Translator,
		"tokenizer":       cfg.Components.Tokenizer,
		"store":           cfg.Components.Store,
	}
	if cfg.DelayMS != nil {
		kv["delay_ms"] = strconv.Itoa(*cfg.DelayMS)
	}
	if p, ok := cfg.Provider[cfg.Translator]; ok {
		kv["provider_client"] = p.Client
		if p.Options != nil {
			var s struct {
				BaseURL string `yaml:"base_url"`
				Model   string `yaml:"model"`
			}
			_ = p.Options.Decode(&s)
			if s.BaseURL != "" {
				kv["base_url"] = s.BaseURL
			}
			if s.Model != "" {
				kv["model"] = s.Model
			}
		}
	}
	return kv
}

// initConfig 在 dir 下写出配置模板与 .env 模板；配置已存在时报错，.env 已存在时跳过。
func initConfig(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeConfig(filepath.Join(dir, DefaultConfigFile), cfgpkg.TemplateYAML()); err != nil {
		return err
	}
	if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
		fprintf(os.Stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
	}
	return nil
}

func writeConfig(path string, b []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(b)
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(b)
	return err
}

// loadDotEnv 读取简单的 .env 文件并注入进程环境。
// 规则：
// - 文件不存在时忽略；
// - 跳过空行与 # 注释；支持可选的 "export " 前缀；
// - 仅按首个 '=' 分割，成对引号去除，双引号内处理 \n \t \r \" \\；
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := unquote(strings.TrimSpace(line[eq+1:]))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

func unquote(val string) string {
	if len(val) < 2 {
		return val
	}
	q := val[0]
	if (q != '\'' && q != '"') || val[len(val)-1] != q {
		return val
	}
	val = val[1 : len(val)-1]
	if q == '"' {
		val = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\"`, `"`, `\\`, `\`).Replace(val)
	}
	return val
}

// normalizeInitArg: --init-config 未给值（位于末尾或后接开关）时补 "."。
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板；已存在则跳过。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# pdftrans .env（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > YAML；空值表示未设置。\n\n")

	b.WriteString("# 配置来源\n")
	b.WriteString("PDFTRANS_CONFIG_FILE=\n")
	b.WriteString("PDFTRANS_CONFIG_YAML=\n\n")

	b.WriteString("# 运行参数\n")
	for _, k := range []string{
		"WORKDIR", "INPUT", "TARGET_LANGUAGE", "DELAY_MS", "MAX_CHUNKS", "ON_ERROR", "RESUME",
		"TRANSLATOR", "RANGE", "ON_ABORT", "PRICE_PER_1K", "LOG_LEVEL", "LOG_DIR",
	} {
		b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# Provider 覆盖（openai）\n")
	for _, k := range []string{"CLIENT", "OPTIONS", "RPM", "TPM", "MAX_TOKENS_PER_REQ"} {
		b.WriteString(cfgpkg.EnvPrefix + "PROVIDER__openai__" + k + "=\n")
	}
	b.WriteString("\n# API Key（由 translator 客户端读取）\n")
	b.WriteString("OPENAI_API_KEY=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightWorkDir 检查工作目录存在且可写（before/ after/ 会在其下创建）。
func preflightWorkDir(dir string) error {
	st, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	}
	f, err := os.CreateTemp(dir, ".wcheck-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
