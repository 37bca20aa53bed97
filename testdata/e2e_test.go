package testdata

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "pdftrans/internal/config"
	"pdftrans/internal/pipeline"
	"pdftrans/pkg/contract"
	"pdftrans/pkg/registry"
)

// bookExtractor 以固定页文本代替 PDF 解析，其余组件均由配置装配。
type bookExtractor struct{ pages []string }

func (b bookExtractor) Extract(_ context.Context, path string) (contract.Document, error) {
	doc := contract.Document{Source: path}
	for i, s := range b.pages {
		doc.Pages = append(doc.Pages, contract.Page{ID: contract.PageID(i), Text: s})
	}
	return doc, nil
}

var book = bookExtractor{pages: []string{
	"Abstract. We study things. Results follow. They are good. Really good. Extra line.",
	"Introduction. The method works. It is simple.",
	"Conclusion. We are done.",
}}

// baseConfig 构造可离线运行的最小配置（mock 翻译器，无等待，不询问区间）。
func baseConfig(workdir string) cfgpkg.Config {
	cfg := cfgpkg.DefaultTemplateConfig()
	cfg.WorkDir = workdir
	cfg.Components.Tokenizer = "rule"
	cfg.Range.Provider = "none"
	zero := 0
	cfg.DelayMS = &zero
	cfg.Logging.Level = "error"
	return cfg
}

func assemble(t *testing.T, cfg cfgpkg.Config) (pipeline.Components, pipeline.Settings) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(cfg.WorkDir, "paper.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	comp, set, err := cfgpkg.Assemble(cfg, cfgpkg.Env{RunID: "e2e"})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	comp.Extractor = book
	return comp, set
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestE2EWholeDocument(t *testing.T) {
	dir := t.TempDir()
	comp, set := assemble(t, baseConfig(dir))
	rep, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Chunks != 4 || rep.Translated != 4 || len(rep.Failed) != 0 {
		t.Fatalf("report %+v", rep)
	}
	for _, name := range []string{
		"before/page_0_0.txt", "before/page_0_1.txt", "before/page_1_0.txt", "before/page_2_0.txt",
		"after/page_0_0_translation.txt", "after/page_2_0_translation.txt",
		"after/log/page_0_0_log.csv", "after/log/page_2_0_log.csv",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if got := readFile(t, filepath.Join(dir, "before", "page_0_1.txt")); got != "Extra line." {
		t.Fatalf("second chunk %q", got)
	}

	f, err := os.Open(filepath.Join(dir, "after", "log", "page_1_0_log.csv"))
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) < 2 {
		t.Fatalf("log rows %v err %v", rows, err)
	}

	merged := readFile(t, filepath.Join(dir, "after", "merge_translation.txt"))
	if !strings.HasPrefix(merged, "Abstract。\n") || !strings.Contains(merged, "Conclusion。\nWe are done。\n") {
		t.Fatalf("merged %q", merged)
	}
	if rep.Usage.Chunks != 4 || rep.Usage.TotalTokens <= 0 || rep.Usage.Cost <= 0 {
		t.Fatalf("usage %+v", rep.Usage)
	}
}

func TestE2EPromptedRange(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.Range.Provider = "prompt"
	oldIn, oldOut := registry.Stdin, registry.Stdout
	registry.Stdin = strings.NewReader("Introduction\nsimple\n")
	var asked strings.Builder
	registry.Stdout = &asked
	t.Cleanup(func() { registry.Stdin, registry.Stdout = oldIn, oldOut })

	comp, set := assemble(t, cfg)
	rep, err := pipeline.Run(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Chunks != 1 {
		t.Fatalf("chunks %d", rep.Chunks)
	}
	if got := readFile(t, filepath.Join(dir, "before", "page_1_0.txt")); got != "Introduction. The method works. It is simple." {
		t.Fatalf("range chunk %q", got)
	}
	if !strings.Contains(asked.String(), "(q to skip)") {
		t.Fatalf("questions not shown: %q", asked.String())
	}
}

func TestE2EStepsAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig(dir)
	cfg.MaxChunks = 2
	comp, set := assemble(t, cfg)
	ctx := context.Background()
	if _, err := pipeline.RunSteps(ctx, comp, set, nil, pipeline.StepExtract); err != nil {
		t.Fatalf("extract: %v", err)
	}
	rep, err := pipeline.RunSteps(ctx, comp, set, nil, pipeline.StepTranslate)
	if err != nil || rep.Translated != 2 {
		t.Fatalf("translate: %v %+v", err, rep)
	}

	// 第二次以 resume 补齐剩余块
	set.MaxChunks = 0
	set.Resume = true
	rep, err = pipeline.RunSteps(ctx, comp, set, nil, pipeline.StepTranslate, pipeline.StepMerge)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if rep.Resumed != 2 || rep.Translated != 2 || rep.Merged != 4 {
		t.Fatalf("report %+v", rep)
	}
	rep, err = pipeline.RunSteps(ctx, comp, set, nil)
	if err != nil || rep.Usage.Chunks != 4 {
		t.Fatalf("usage: %v %+v", err, rep.Usage)
	}
}
