package stress

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	cfgpkg "pdftrans/internal/config"
	"pdftrans/internal/pipeline"
	"pdftrans/pkg/contract"
)

// synthetic 生成 n 页、每页 sentences 句的文档。
type synthetic struct{ pages, sentences int }

func (s synthetic) Extract(_ context.Context, path string) (contract.Document, error) {
	doc := contract.Document{Source: path}
	for p := 0; p < s.pages; p++ {
		var b strings.Builder
		for i := 0; i < s.sentences; i++ {
			if i > 0 && i%4 == 0 {
				b.WriteString("\r\n")
			} else if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "Page %d sentence %d.", p, i)
		}
		doc.Pages = append(doc.Pages, contract.Page{ID: contract.PageID(p), Text: b.String()})
	}
	return doc, nil
}

// baseConfig 构造无等待、不询问区间的 mock 配置。
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

// runPipeline 执行完整流水线。
func runPipeline(t *testing.T, cfg cfgpkg.Config, doc synthetic) (pipeline.Report, error) {
	if err := os.WriteFile(filepath.Join(cfg.WorkDir, "stress.pdf"), nil, 0o644); err != nil {
		return pipeline.Report{}, err
	}
	comp, set, err := cfgpkg.Assemble(cfg, cfgpkg.Env{RunID: t.Name()})
	if err != nil {
		return pipeline.Report{}, err
	}
	comp.Extractor = doc
	return pipeline.Run(context.Background(), comp, set, nil)
}

// TestStress 在不同文档规模下运行流水线并记录延迟统计。
func TestStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress")
	}
	sizes := []int{10, 100, 400}
	for _, pages := range sizes {
		t.Run(fmt.Sprintf("pages_%d", pages), func(t *testing.T) {
			const runs = 3
			doc := synthetic{pages: pages, sentences: 12}
			wantChunks := pages * 3
			successes := 0
			latencies := make([]time.Duration, 0, runs)
			for i := 0; i < runs; i++ {
				start := time.Now()
				rep, err := runPipeline(t, baseConfig(t.TempDir()), doc)
				dur := time.Since(start)
				if err != nil {
					t.Errorf("run %d: %v", i, err)
					continue
				}
				if rep.Merged != wantChunks || len(rep.Failed) != 0 {
					t.Errorf("run %d: merged %d want %d, failed %d", i, rep.Merged, wantChunks, len(rep.Failed))
					continue
				}
				successes++
				latencies = append(latencies, dur)
			}
			if successes == 0 {
				t.Fatalf("全部运行失败")
			}
			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			var total time.Duration
			for _, d := range latencies {
				total += d
			}
			avg := total / time.Duration(len(latencies))
			idx := int(math.Ceil(float64(len(latencies))*0.95)) - 1
			if idx < 0 {
				idx = 0
			}
			t.Logf("页数%d 成功率%.2f 平均%v 95%%延迟%v", pages, float64(successes)/float64(runs), avg, latencies[idx])
		})
	}
}
