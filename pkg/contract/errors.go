package contract

import (
	"errors"
	"fmt"
)

// 错误分类（哨兵），上层以 errors.Is 判定并决定跳过或中止。
var (
	// ErrAnchorNotFound: 锚点短语未在任何页（或边界页的任何行）中出现。
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrRangeAborted: 操作者输入哨兵值放弃区间选择。
	ErrRangeAborted = errors.New("range aborted")
	// ErrRangeInvalid: 起始页位于结束页之后。
	ErrRangeInvalid = errors.New("range invalid")
	// ErrPageMismatch: 页号与文档页数不一致（区间换算或双解析器页数不符）。
	ErrPageMismatch = errors.New("page mismatch")

	ErrExtractionFailed   = errors.New("extraction failed")
	ErrSegmentationFailed = errors.New("segmentation failed")
	ErrTranslationFailed  = errors.New("translation failed")

	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrNameInvalid: 存储名无法解析为 (page, index)。
	ErrNameInvalid = errors.New("name invalid")

	ErrInputNotFound  = errors.New("input pdf not found")
	ErrInputAmbiguous = errors.New("input pdf ambiguous")
)

// AnchorError: 锚点查找失败的具体位置。Page < 0 表示全文扫描。
type AnchorError struct {
	Role   string // "begin" | "end"
	Phrase string
	Page   PageID
}

func (e *AnchorError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("%s anchor %q not found in document", e.Role, e.Phrase)
	}
	return fmt.Sprintf("%s anchor %q not found on %s", e.Role, e.Phrase, e.Page.Key())
}

func (e *AnchorError) Unwrap() error { return ErrAnchorNotFound }

// UnitError: 单元级失败（某页或某块），由编排器收集到报告中。
type UnitError struct {
	Stage string
	Key   ChunkKey
	// PageLevel: 失败单元是整页（Key.Index 无意义）。
	PageLevel bool
	Err       error
}

// Unit 返回失败单元的名称：整页为 page_<p>，否则为 page_<p>_<idx>。
func (e *UnitError) Unit() string {
	if e.PageLevel {
		return e.Key.Page.Key()
	}
	return e.Key.String()
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Unit(), e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// UpstreamError 承载 HTTP 上游错误的最小诊断信息（状态码与简短消息），供日志记录。
type UpstreamError interface {
	error
	UpstreamStatus() int
	UpstreamMessage() string
}
