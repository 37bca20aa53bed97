package diag

import (
	"context"
	"errors"
	"net"
	"os"

	"pdftrans/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志汇总，与退出码解耦。
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeCancel      Code = "cancel"
	CodeRateLimited Code = "rate_limited"
	CodeAnchor      Code = "anchor"
	CodeRange       Code = "range"
	CodeExtract     Code = "extract"
	CodeSegment     Code = "segment"
	CodeProtocol    Code = "protocol"
	CodeInvalid     Code = "invalid"
	CodeTranslate   Code = "translate"
	CodeNetwork     Code = "network"
	CodeIO          Code = "io"
)

// Classify 将错误归为最小分类。
// 只看哨兵错误与标准库错误类型，不做字符串匹配；越具体的原因越先判定。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	// 429 同时实现 net.Error，须先于网络判定
	if errors.Is(err, contract.ErrRateLimited) {
		return CodeRateLimited
	}
	if errors.Is(err, contract.ErrAnchorNotFound) {
		return CodeAnchor
	}
	if errors.Is(err, contract.ErrRangeAborted) || errors.Is(err, contract.ErrRangeInvalid) {
		return CodeRange
	}
	if errors.Is(err, contract.ErrResponseInvalid) {
		return CodeProtocol
	}
	if errors.Is(err, contract.ErrInvalidInput) ||
		errors.Is(err, contract.ErrNameInvalid) ||
		errors.Is(err, contract.ErrInputNotFound) ||
		errors.Is(err, contract.ErrInputAmbiguous) {
		return CodeInvalid
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return CodeNetwork
	}
	if errors.Is(err, contract.ErrExtractionFailed) || errors.Is(err, contract.ErrPageMismatch) {
		return CodeExtract
	}
	if errors.Is(err, contract.ErrSegmentationFailed) {
		return CodeSegment
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	if errors.Is(err, contract.ErrTranslationFailed) {
		return CodeTranslate
	}
	return CodeUnknown
}
