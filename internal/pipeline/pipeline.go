package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdftrans/internal/diag"
	"pdftrans/internal/merge"
	"pdftrans/internal/prompt"
	"pdftrans/internal/rate"
	"pdftrans/internal/segment"
	"pdftrans/internal/selector"
	"pdftrans/internal/usage"
	"pdftrans/pkg/contract"
)

// - 单写者：全程顺序执行，任一时刻至多一次翻译调用。
// - 存储即检查点：阶段之间只通过 ChunkStore 交接，List 的排序是唯一顺序依据。
// - 单元失败按 OnError 策略跳过或中止；区间与 I/O 失败总是中止。

// Components 聚合运行所需的原子组件。
type Components struct {
	Extractor  contract.Extractor
	Segmenter  *segment.Segmenter
	Range      contract.RangeProvider // nil 表示整文模式
	Store      contract.ChunkStore
	Prompt     contract.PromptBuilder
	Translator contract.Translator
}

// 区间放弃与单元失败策略。
const (
	OnAbortWhole = "whole"
	OnAbortHalt  = "halt"
	OnErrorSkip  = "skip"
	OnErrorAbort = "abort"
)

// Settings 运行期配置（最小必要）。
type Settings struct {
	WorkDir string
	Input   string // 显式输入；为空时在 WorkDir 下查找唯一 *.pdf
	Target  string // 目标语言
	OnAbort string
	OnError string
	// MaxChunks: 单次运行最多翻译的块数；<=0 不限。
	MaxChunks int
	// Resume: 保留已有译文并跳过对应块；否则翻译前清空 after/。
	Resume bool
	// 闸门（可选）：调用翻译前 Wait，固定间隔与 RPM/TPM 在此实现
	Gate            *rate.Gate
	BytesPerToken   int
	MaxOutputTokens int
	FullStop        string
	PricePer1K      float64
	Translator      string // 仅用于日志/终端
	Term            *diag.Terminal
}

// Step 为可单独执行的阶段。
type Step string

const (
	StepExtract   Step = "extract"
	StepTranslate Step = "translate"
	StepMerge     Step = "merge"
)

// Report 为一次运行的汇总。
type Report struct {
	Source     string
	Selection  selector.State
	Pages      int // 参与分段的页数
	Chunks     int // 写出的原文块
	Translated int
	Resumed    int // Resume 时跳过的已译块
	Merged     int
	Failed     []*contract.UnitError
	Usage      usage.Summary
}

// Context 在阶段间传递的运行状态，由调用方持有。
type Context struct {
	Source    string
	Document  contract.Document
	Selection selector.Selection
	Report    Report
}

// Run 执行完整流水线：Extract → Translate → Merge。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	return RunSteps(ctx, comp, set, logger, StepExtract, StepTranslate, StepMerge)
}

// RunSteps 依序执行给定阶段，结束后汇总用量。
func RunSteps(ctx context.Context, comp Components, set Settings, logger *diag.Logger, steps ...Step) (Report, error) {
	if err := sanity(comp, set, steps); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	pc := &Context{}
	t0 := time.Now()
	ok := false
	label := set.Input
	if label == "" {
		label = set.WorkDir
	}
	set.Term.RunStart(label, set.Translator)
	defer func() { set.Term.RunFinish(ok, time.Since(t0)) }()
	for _, st := range steps {
		var err error
		switch st {
		case StepExtract:
			err = Extract(ctx, pc, comp, set, logger)
		case StepTranslate:
			err = Translate(ctx, pc, comp, set, logger)
		case StepMerge:
			err = MergeStage(ctx, pc, comp, set, logger)
		}
		if err != nil {
			return pc.Report, err
		}
	}
	sum, err := usage.Summarize(ctx, comp.Store, set.PricePer1K)
	if err != nil {
		logger.Error("usage", string(diag.Classify(err)), err.Error(), nil)
		return pc.Report, err
	}
	pc.Report.Usage = sum
	ok = true
	return pc.Report, nil
}

func sanity(c Components, s Settings, steps []Step) error {
	if c.Store == nil {
		return fmt.Errorf("%w: store required", contract.ErrInvalidInput)
	}
	for _, st := range steps {
		switch st {
		case StepExtract:
			if c.Extractor == nil || c.Segmenter == nil {
				return fmt.Errorf("%w: extractor and segmenter required", contract.ErrInvalidInput)
			}
			if s.OnAbort != "" && s.OnAbort != OnAbortWhole && s.OnAbort != OnAbortHalt {
				return fmt.Errorf("%w: on_abort %q", contract.ErrInvalidInput, s.OnAbort)
			}
		case StepTranslate:
			if c.Prompt == nil || c.Translator == nil {
				return fmt.Errorf("%w: prompt builder and translator required", contract.ErrInvalidInput)
			}
			if s.OnError != "" && s.OnError != OnErrorSkip && s.OnError != OnErrorAbort {
				return fmt.Errorf("%w: on_error %q", contract.ErrInvalidInput, s.OnError)
			}
		case StepMerge:
		default:
			return fmt.Errorf("%w: unknown step %q", contract.ErrInvalidInput, st)
		}
	}
	return nil
}

// Extract 定位输入、抽取页、选择区间、分段并写出原文块。
func Extract(ctx context.Context, pc *Context, comp Components, set Settings, logger *diag.Logger) error {
	src, err := Locate(set.WorkDir, set.Input)
	if err != nil {
		logger.Error("input", string(diag.Classify(err)), err.Error(), nil)
		return fmt.Errorf("locate input: %w", err)
	}
	pc.Source, pc.Report.Source = src, src

	etimer := logger.StartWith("extractor", "extract", filepath.Base(src), nil)
	doc, err := comp.Extractor.Extract(ctx, src)
	if err != nil {
		begin := etimer.Begin()
		logger.ErrorWith("extractor", string(diag.Classify(err)), err.Error(), &begin, filepath.Base(src), nil)
		return fmt.Errorf("extract: %w", err)
	}
	etimer.Finish("extract", int64(len(doc.Pages)))
	pc.Document = doc

	sel, err := selector.Select(ctx, doc, comp.Range)
	pc.Selection = sel
	pc.Report.Selection = sel.State
	if err != nil {
		code := string(diag.Classify(err))
		if !errors.Is(err, contract.ErrRangeAborted) || set.OnAbort == OnAbortHalt {
			logger.Error("selector", code, err.Error(), nil)
			return fmt.Errorf("select range: %w", err)
		}
		// 哨兵放弃：回退整文模式
		logger.Warn("selector", code, "range aborted, whole document", "")
	}
	rng := sel.Active()
	if rng != nil {
		logger.Debug("selector", "resolved", "", map[string]string{
			"start": rng.StartPage.Key(),
			"end":   rng.EndPage.Key(),
		})
	}
	pages, err := selector.Filter(doc, rng)
	if err != nil {
		logger.Error("selector", string(diag.Classify(err)), err.Error(), nil)
		return fmt.Errorf("filter pages: %w", err)
	}

	if err := comp.Store.Reset(ctx, contract.StageSource); err != nil {
		return fmt.Errorf("reset source: %w", err)
	}
	set.Term.StageStart(string(StepExtract), len(pages))
	stimer := logger.Start("segmenter", "segment")
	ok := false
	defer func() { set.Term.StageFinish(ok, pc.Report.Chunks, time.Since(stimer.Begin())) }()
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		last, emitted, err := comp.Segmenter.Segment(ctx, p, rng, func(c contract.Chunk) error {
			if err := comp.Store.PutChunk(ctx, c); err != nil {
				return err
			}
			pc.Report.Chunks++
			return nil
		})
		if err != nil {
			ue := &contract.UnitError{Stage: "segment", Key: contract.ChunkKey{Page: p.ID}, PageLevel: true, Err: err}
			logger.ErrorWith("segmenter", string(diag.Classify(err)), err.Error(), nil, p.ID.Key(), nil)
			// 只有分词失败可按策略跳过；锚点与存储错误会悄悄截断输出
			if ctx.Err() != nil || !errors.Is(err, contract.ErrSegmentationFailed) || set.OnError == OnErrorAbort {
				return ue
			}
			pc.Report.Failed = append(pc.Report.Failed, ue)
			continue
		}
		pc.Report.Pages++
		if emitted {
			logger.Debug("segmenter", "page", p.ID.Key(), map[string]string{"last": last.Key.String()})
		}
		set.Term.Progress(i+1, len(pages), len(pc.Report.Failed))
	}
	stimer.Finish("segment", int64(pc.Report.Chunks))
	ok = true
	return nil
}

// fatalErr 标记必须中止运行的单元错误（存储读写）。
type fatalErr struct{ err error }

func (e fatalErr) Error() string { return e.err.Error() }
func (e fatalErr) Unwrap() error { return e.err }

// Translate 逐块顺序翻译 before/ 下的原文块并写出译文与用量记录。
func Translate(ctx context.Context, pc *Context, comp Components, set Settings, logger *diag.Logger) error {
	keys, err := comp.Store.List(ctx, contract.StageSource)
	if err != nil {
		return fmt.Errorf("list source: %w", err)
	}
	done := map[contract.ChunkKey]bool{}
	if set.Resume {
		have, err := comp.Store.List(ctx, contract.StageTranslated)
		if err != nil {
			return fmt.Errorf("list translated: %w", err)
		}
		for _, k := range have {
			done[k] = true
		}
	} else {
		for _, st := range []contract.Stage{contract.StageTranslated, contract.StageLog} {
			if err := comp.Store.Reset(ctx, st); err != nil {
				return fmt.Errorf("reset %s: %w", st, err)
			}
		}
	}
	est := prompt.MakeEstimator(set.BytesPerToken)

	total := len(keys)
	if set.MaxChunks > 0 && set.MaxChunks < total {
		total = set.MaxChunks
	}
	set.Term.StageStart(string(StepTranslate), total)
	ttimer := logger.Start("translator", "translate")
	ok := false
	defer func() { set.Term.StageFinish(ok, pc.Report.Translated, time.Since(ttimer.Begin())) }()

	attempted := 0
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if done[k] {
			pc.Report.Resumed++
			continue
		}
		if set.MaxChunks > 0 && attempted >= set.MaxChunks {
			logger.Debug("translator", "max_chunks reached", k.String(), map[string]string{"max_chunks": strconv.Itoa(set.MaxChunks)})
			break
		}
		attempted++
		if err := translateOne(ctx, k, comp, set, est, logger); err != nil {
			var fe fatalErr
			if ctx.Err() != nil || errors.As(err, &fe) {
				return &contract.UnitError{Stage: "translate", Key: k, Err: err}
			}
			ue := &contract.UnitError{Stage: "translate", Key: k, Err: err}
			pc.Report.Failed = append(pc.Report.Failed, ue)
			if set.OnError == OnErrorAbort {
				return ue
			}
			logger.Warn("translator", string(diag.Classify(err)), "chunk skipped", k.String())
		} else {
			pc.Report.Translated++
		}
		set.Term.Progress(attempted, total, len(pc.Report.Failed))
	}
	ttimer.Finish("translate", int64(pc.Report.Translated))
	ok = true
	return nil
}

func translateOne(ctx context.Context, k contract.ChunkKey, comp Components, set Settings, est contract.TokenEstimator, logger *diag.Logger) error {
	text, err := comp.Store.ReadChunk(ctx, contract.StageSource, k)
	if err != nil {
		return fatalErr{err}
	}
	req := contract.Request{Key: k, Text: text, Target: set.Target}
	msgs, err := comp.Prompt.Build(ctx, req)
	if err != nil {
		logger.ErrorWith("prompt", string(diag.Classify(err)), err.Error(), nil, k.String(), nil)
		return err
	}
	req.Messages = msgs
	tokens := prompt.Ask(msgs, est, set.MaxOutputTokens)
	if set.Gate != nil {
		logger.Debug("gate", "wait", k.String(), map[string]string{"tokens": strconv.Itoa(tokens)})
		if err := set.Gate.Wait(ctx, tokens); err != nil {
			logger.ErrorWith("gate", string(diag.Classify(err)), err.Error(), nil, k.String(), nil)
			return err
		}
	}
	tm := logger.StartWith("translator", "invoke", k.String(), map[string]string{"tokens": strconv.Itoa(tokens)})
	res, err := comp.Translator.Translate(ctx, req)
	if err != nil {
		begin := tm.Begin()
		logger.ErrorWith("translator", string(diag.Classify(err)), err.Error(), &begin, k.String(), upstreamKV(err))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", contract.ErrTranslationFailed, err)
	}
	tm.Finish("invoke", int64(res.Usage.TotalTokens))
	if err := comp.Store.PutTranslation(ctx, contract.Translation{Key: k, Text: res.Text, Usage: res.Usage}); err != nil {
		logger.ErrorWith("store", string(diag.Classify(err)), err.Error(), nil, k.String(), nil)
		return fatalErr{err}
	}
	return nil
}

func upstreamKV(err error) map[string]string {
	var ue contract.UpstreamError
	if !errors.As(err, &ue) {
		return nil
	}
	msg := ue.UpstreamMessage()
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return map[string]string{"http_status": strconv.Itoa(ue.UpstreamStatus()), "upstream": msg}
}

// MergeStage 读取全部译文块，按序合并并写出一次。
func MergeStage(ctx context.Context, pc *Context, comp Components, set Settings, logger *diag.Logger) error {
	mtimer := logger.Start("merger", "merge")
	keys, err := comp.Store.List(ctx, contract.StageTranslated)
	if err != nil {
		return fmt.Errorf("list translated: %w", err)
	}
	set.Term.StageStart(string(StepMerge), len(keys))
	ok := false
	defer func() { set.Term.StageFinish(ok, len(keys), time.Since(mtimer.Begin())) }()
	items := make([]merge.Item, 0, len(keys))
	for _, k := range keys {
		text, err := comp.Store.ReadChunk(ctx, contract.StageTranslated, k)
		if err != nil {
			logger.ErrorWith("merger", string(diag.Classify(err)), err.Error(), nil, k.String(), nil)
			return &contract.UnitError{Stage: "merge", Key: k, Err: err}
		}
		items = append(items, merge.Item{Key: k, Text: text})
	}
	out := merge.Merge(items, merge.Options{FullStop: set.FullStop})
	if err := comp.Store.PutMerged(ctx, strings.NewReader(out)); err != nil {
		logger.Error("merger", string(diag.Classify(err)), err.Error(), nil)
		return fmt.Errorf("write merged: %w", err)
	}
	pc.Report.Merged = len(items)
	mtimer.Finish("merge", int64(len(items)))
	ok = true
	return nil
}
