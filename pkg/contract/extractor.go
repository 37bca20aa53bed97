package contract

import "context"

// Extractor: 给定 PDF 路径，产出按文档顺序的逐页原始文本。
// 约束：
//  1. 页序号自 0 起；
//  2. 页文本按行以 "\r\n" 连接；
//  3. 打开或解析失败返回包装 ErrExtractionFailed 的错误。
type Extractor interface {
	Extract(ctx context.Context, path string) (Document, error)
}

// Tokenizer: 句子边界切分。返回的句子已去除首尾空白，不含空句。
type Tokenizer interface {
	Sentences(text string) ([]string, error)
}
