package filesystem

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdftrans/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Root: 工作目录（必需），before/ 与 after/ 位于其下。
	Root string `yaml:"root"`
	// MergedName: 合并输出文件名，须为 Root 下的相对路径；默认 after/merge_translation.txt。
	MergedName string `yaml:"merged_name,omitempty"`
	// Manifest: 是否在 after/ 下追加 JSON Lines 清单。默认 true。
	Manifest *bool `yaml:"manifest,omitempty"`
	// PermFile/PermDir: 为 0 使用默认。
	PermFile os.FileMode `yaml:"perm_file,omitempty"`
	PermDir  os.FileMode `yaml:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 使用默认。
	BufSize int `yaml:"buf_size,omitempty"`
	// RunID: 写入清单行的运行标识（由调用方生成）。
	RunID string `yaml:"-"`
}

// FS: 目录型块存储。单写者顺序访问。
type FS struct {
	root     string
	merged   string
	manifest bool
	permF    os.FileMode
	permD    os.FileMode
	bufSize  int
	runID    string
	now      func() time.Time
}

// New 创建文件系统块存储。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.Root) == "" {
		return nil, fmt.Errorf("%w: store root required", contract.ErrInvalidInput)
	}
	merged := opts.MergedName
	if merged == "" {
		merged = DefaultMerged
	}
	if err := checkRelative(merged); err != nil {
		return nil, err
	}
	s := &FS{
		root:     opts.Root,
		merged:   merged,
		manifest: true,
		permF:    opts.PermFile,
		permD:    opts.PermDir,
		bufSize:  opts.BufSize,
		runID:    opts.RunID,
		now:      time.Now,
	}
	if opts.Manifest != nil {
		s.manifest = *opts.Manifest
	}
	if s.permF == 0 {
		s.permF = 0o644
	}
	if s.permD == 0 {
		s.permD = 0o755
	}
	if s.bufSize <= 0 {
		s.bufSize = 64 * 1024
	}
	return s, nil
}

var _ contract.ChunkStore = (*FS)(nil)

// Root 返回工作目录。
func (s *FS) Root() string { return s.root }

// MergedPath 返回合并输出的完整路径。
func (s *FS) MergedPath() string { return filepath.Join(s.root, filepath.FromSlash(s.merged)) }

// checkRelative: 禁止绝对路径、父级逃逸与卷名。
func checkRelative(name string) error {
	rel := filepath.Clean(name)
	switch {
	case rel == "." || rel == "" || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "":
		return fmt.Errorf("%w: output name %q", contract.ErrInvalidInput, name)
	case rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return fmt.Errorf("%w: output name %q", contract.ErrInvalidInput, name)
	}
	return nil
}

func dirFor(stage contract.Stage) string {
	switch stage {
	case contract.StageTranslated:
		return TranslatedDir
	case contract.StageLog:
		return LogDir
	default:
		return SourceDir
	}
}

func (s *FS) path(stage contract.Stage, k contract.ChunkKey) string {
	return filepath.Join(s.root, filepath.FromSlash(dirFor(stage)), NameFor(stage, k))
}

// PutChunk 写入翻译前块。
func (s *FS) PutChunk(ctx context.Context, c contract.Chunk) error {
	return s.writeFile(ctx, s.path(contract.StageSource, c.Key), strings.NewReader(c.Text))
}

// PutTranslation 写入译文、用量记录，并追加清单行。
func (s *FS) PutTranslation(ctx context.Context, t contract.Translation) error {
	if err := s.writeFile(ctx, s.path(contract.StageTranslated, t.Key), strings.NewReader(t.Text)); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := encodeUsage(&buf, t.Key, t.Usage); err != nil {
		return err
	}
	if err := s.writeFile(ctx, s.path(contract.StageLog, t.Key), &buf); err != nil {
		return err
	}
	if !s.manifest {
		return nil
	}
	return s.appendManifest(t)
}

// List 列出阶段内可识别的块并按 (page, index) 升序返回。目录不存在视为空。
func (s *FS) List(ctx context.Context, stage contract.Stage) ([]contract.ChunkKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(dirFor(stage))))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	keys := make([]contract.ChunkKey, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		k, err := ParseName(stage, e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	contract.SortKeys(keys)
	return keys, nil
}

// ReadChunk 读取块文本（翻译前或译文）。
func (s *FS) ReadChunk(ctx context.Context, stage contract.Stage, k contract.ChunkKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if stage == contract.StageLog {
		return "", fmt.Errorf("%w: log stage holds usage records", contract.ErrInvalidInput)
	}
	b, err := os.ReadFile(s.path(stage, k))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadUsage 读取单块的用量记录。
func (s *FS) ReadUsage(ctx context.Context, k contract.ChunkKey) (contract.Usage, error) {
	if err := ctx.Err(); err != nil {
		return contract.Usage{}, err
	}
	f, err := os.Open(s.path(contract.StageLog, k))
	if err != nil {
		return contract.Usage{}, err
	}
	defer f.Close()
	return decodeUsage(f)
}

// PutMerged 原子写入合并结果。
func (s *FS) PutMerged(ctx context.Context, r io.Reader) error {
	return s.writeFile(ctx, s.MergedPath(), r)
}

// Reset 删除阶段内可识别的块文件；翻译阶段同时删除清单。其他文件不动。
func (s *FS) Reset(ctx context.Context, stage contract.Stage) error {
	keys, err := s.List(ctx, stage)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := os.Remove(s.path(stage, k)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if stage == contract.StageTranslated {
		err := os.Remove(filepath.Join(s.root, TranslatedDir, ManifestName))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// 用量记录：单表头 + 单行。
var usageHeader = []string{
	"page", "paragraph", "id", "model", "created", "finish_reason",
	"usage.prompt_tokens", "usage.completion_tokens", "usage.total_tokens",
}

func encodeUsage(w io.Writer, k contract.ChunkKey, u contract.Usage) error {
	cw := csv.NewWriter(w)
	row := []string{
		strconv.Itoa(int(k.Page)), strconv.Itoa(k.Index), u.ID, u.Model,
		strconv.FormatInt(u.Created, 10), u.FinishReason,
		strconv.Itoa(u.PromptTokens), strconv.Itoa(u.CompletionTokens), strconv.Itoa(u.TotalTokens),
	}
	if err := cw.Write(usageHeader); err != nil {
		return err
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// decodeUsage 按表头名取列，缺失的数值列按 0 处理。
func decodeUsage(r io.Reader) (contract.Usage, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return contract.Usage{}, err
	}
	if len(rows) < 2 {
		return contract.Usage{}, fmt.Errorf("%w: usage record has no data row", contract.ErrResponseInvalid)
	}
	col := make(map[string]string, len(rows[0]))
	for i, h := range rows[0] {
		if i < len(rows[1]) {
			col[h] = rows[1][i]
		}
	}
	num := func(name string) int {
		n, _ := strconv.Atoi(col[name])
		return n
	}
	created, _ := strconv.ParseInt(col["created"], 10, 64)
	return contract.Usage{
		ID:               col["id"],
		Model:            col["model"],
		Created:          created,
		FinishReason:     col["finish_reason"],
		PromptTokens:     num("usage.prompt_tokens"),
		CompletionTokens: num("usage.completion_tokens"),
		TotalTokens:      num("usage.total_tokens"),
	}, nil
}

// manifestLine: 结构化记录，与文件名并存。
type manifestLine struct {
	RunID       string    `json:"run_id,omitempty"`
	Page        int       `json:"page"`
	Index       int       `json:"index"`
	Source      string    `json:"source"`
	Translation string    `json:"translation"`
	Log         string    `json:"log"`
	Model       string    `json:"model,omitempty"`
	TotalTokens int       `json:"total_tokens"`
	At          time.Time `json:"at"`
}

func (s *FS) appendManifest(t contract.Translation) error {
	dir := filepath.Join(s.root, TranslatedDir)
	if err := os.MkdirAll(dir, s.permD); err != nil {
		return err
	}
	line, err := json.Marshal(manifestLine{
		RunID:       s.runID,
		Page:        int(t.Key.Page),
		Index:       t.Key.Index,
		Source:      SourceDir + "/" + SourceName(t.Key),
		Translation: TranslatedDir + "/" + TranslationName(t.Key),
		Log:         LogDir + "/" + LogName(t.Key),
		Model:       t.Usage.Model,
		TotalTokens: t.Usage.TotalTokens,
		At:          s.now().UTC(),
	})
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, ManifestName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, s.permF)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := bw.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
