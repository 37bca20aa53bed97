package prompt

import "pdftrans/pkg/contract"

// MakeEstimator 返回近似 token 估算器：tokens ≈ ceil(len(utf8_bytes)/bytesPerToken)。
// bytesPerToken<=0 时采用默认 4。
func MakeEstimator(bytesPerToken int) contract.TokenEstimator {
	bpt := bytesPerToken
	if bpt <= 0 {
		bpt = 4
	}
	return func(s string) int {
		n := len(s)
		if n == 0 {
			return 0
		}
		return (n + bpt - 1) / bpt
	}
}

// Ask 估算一次请求的 token 预扣：全部消息内容 + 期望的输出上限。
// 供速率闸门按 TPM 计费。
func Ask(msgs []contract.Message, est contract.TokenEstimator, maxOutput int) int {
	if est == nil {
		est = MakeEstimator(0)
	}
	n := 0
	for _, m := range msgs {
		n += est(m.Content)
	}
	if maxOutput > 0 {
		n += maxOutput
	}
	return n
}
