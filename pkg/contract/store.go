package contract

import (
	"context"
	"io"
)

// Stage: 块存储阶段。
type Stage int

const (
	// StageSource: 翻译前（before/）。
	StageSource Stage = iota
	// StageTranslated: 翻译后（after/）。
	StageTranslated
	// StageLog: 每块用量记录（after/log/）。
	StageLog
)

func (s Stage) String() string {
	switch s {
	case StageSource:
		return "source"
	case StageTranslated:
		return "translated"
	case StageLog:
		return "log"
	default:
		return "unknown"
	}
}

// ChunkStore: 以 (page, index) 命名的有序块集合。
// 约束：
//  1. 单写者顺序访问，不需要锁；
//  2. List 的排序是后续阶段唯一的顺序依据；
//  3. 写入原子化（不会出现半写文件）。
type ChunkStore interface {
	PutChunk(ctx context.Context, c Chunk) error
	PutTranslation(ctx context.Context, t Translation) error
	List(ctx context.Context, stage Stage) ([]ChunkKey, error)
	ReadChunk(ctx context.Context, stage Stage, k ChunkKey) (string, error)
	ReadUsage(ctx context.Context, k ChunkKey) (Usage, error)
	PutMerged(ctx context.Context, r io.Reader) error
	Reset(ctx context.Context, stage Stage) error
}
