package filesystem

import (
	"fmt"
	"strconv"
	"strings"

	"pdftrans/pkg/contract"
)

// 存储布局（相对工作目录）。
const (
	SourceDir      = "before"
	TranslatedDir  = "after"
	LogDir         = "after/log"
	ManifestName   = "manifest.jsonl"
	DefaultMerged  = "after/merge_translation.txt"
	translationTag = "translation"
	logTag         = "log"
)

// SourceName: page_<p>_<idx>.txt
func SourceName(k contract.ChunkKey) string {
	return fmt.Sprintf("page_%d_%d.txt", k.Page, k.Index)
}

// TranslationName: page_<p>_<idx>_translation.txt
func TranslationName(k contract.ChunkKey) string {
	return fmt.Sprintf("page_%d_%d_%s.txt", k.Page, k.Index, translationTag)
}

// LogName: page_<p>_<idx>_log.csv
func LogName(k contract.ChunkKey) string {
	return fmt.Sprintf("page_%d_%d_%s.csv", k.Page, k.Index, logTag)
}

// NameFor 返回阶段对应的存储名。
func NameFor(stage contract.Stage, k contract.ChunkKey) string {
	switch stage {
	case contract.StageTranslated:
		return TranslationName(k)
	case contract.StageLog:
		return LogName(k)
	default:
		return SourceName(k)
	}
}

// ParseName 由存储名还原 (page, index)。
// 序号所在字段随阶段不同：翻译前为最后一个字段，翻译后与日志为倒数第二个字段
// （最后一个字段是 translation/log 标记）。
func ParseName(stage contract.Stage, name string) (contract.ChunkKey, error) {
	var (
		ext    = ".txt"
		tag    string
		fields int
	)
	switch stage {
	case contract.StageSource:
		fields = 3
	case contract.StageTranslated:
		tag, fields = translationTag, 4
	case contract.StageLog:
		ext, tag, fields = ".csv", logTag, 4
	default:
		return contract.ChunkKey{}, fmt.Errorf("%w: stage %v", contract.ErrInvalidInput, stage)
	}
	stem, ok := strings.CutSuffix(name, ext)
	if !ok {
		return contract.ChunkKey{}, fmt.Errorf("%w: %q", contract.ErrNameInvalid, name)
	}
	parts := strings.Split(stem, "_")
	if len(parts) != fields || parts[0] != "page" {
		return contract.ChunkKey{}, fmt.Errorf("%w: %q", contract.ErrNameInvalid, name)
	}
	ordinal := parts[len(parts)-1]
	if tag != "" {
		if parts[len(parts)-1] != tag {
			return contract.ChunkKey{}, fmt.Errorf("%w: %q", contract.ErrNameInvalid, name)
		}
		ordinal = parts[len(parts)-2]
	}
	page, err := parseOrdinal(parts[1])
	if err != nil {
		return contract.ChunkKey{}, fmt.Errorf("%w: %q", contract.ErrNameInvalid, name)
	}
	idx, err := parseOrdinal(ordinal)
	if err != nil {
		return contract.ChunkKey{}, fmt.Errorf("%w: %q", contract.ErrNameInvalid, name)
	}
	return contract.ChunkKey{Page: contract.PageID(page), Index: idx}, nil
}

// parseOrdinal 只接受规范十进制（无符号、无前导零），保证名称与键一一对应。
func parseOrdinal(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || strconv.Itoa(n) != s {
		return 0, contract.ErrNameInvalid
	}
	return n, nil
}
