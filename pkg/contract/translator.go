package contract

import "context"

// Message: 最小会话消息形状。
type Message struct {
	Role    string
	Content string
}

// Request: 单块翻译请求。Messages 由 prompt 构造器生成；为空时实现方可自行以 Text 组装。
type Request struct {
	Key      ChunkKey
	Text     string
	Target   string
	Messages []Message
}

// Result: 译文与用量元信息。
type Result struct {
	Text  string
	Usage Usage
}

// Translator: 单次同步调用，尊重 ctx 取消；任何失败以错误返回而非 panic。
// 实现不得重试。
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// AbortSentinel: 区间输入的放弃哨兵。
const AbortSentinel = "q"

// RangeProvider: 提供 begin/end 锚点短语（交互或程序化）。
// 返回任一短语等于 AbortSentinel 表示放弃区间选择。
type RangeProvider interface {
	Phrases(ctx context.Context) (begin, end string, err error)
}

// TokenEstimator: 文本→token 的近似估算函数。
type TokenEstimator func(s string) int

// PromptBuilder: 为单块构造会话消息。纯计算，不做 I/O。
type PromptBuilder interface {
	Build(ctx context.Context, req Request) ([]Message, error)
}
