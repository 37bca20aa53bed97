package registry

import (
	"bytes"
	"context"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"pdftrans/internal/segment"
	"pdftrans/pkg/contract"
	xpdf "pdftrans/plugins/extractor/pdf"
	ppt "pdftrans/plugins/prompt/translate"
	rfixed "pdftrans/plugins/rangeprovider/fixed"
	rprompt "pdftrans/plugins/rangeprovider/prompt"
	sfs "pdftrans/plugins/store/filesystem"
	teino "pdftrans/plugins/translator/eino"
	tflaky "pdftrans/plugins/translator/flaky"
	tmock "pdftrans/plugins/translator/mock"
	toai "pdftrans/plugins/translator/openai"
)

// strictDecode: 重新编码节点后以 KnownFields 严格解码，拒绝未知字段。
func strictDecode(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 {
		// 保持零值（默认选项）
		return nil
	}
	b, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// 交互式区间输入的读写端；测试可替换。
var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stderr
)

// NewExtractor 工厂签名：接收原样 YAML Options。
type NewExtractor func(node *yaml.Node) (contract.Extractor, error)

// NewTokenizer 工厂签名。
type NewTokenizer func(node *yaml.Node) (contract.Tokenizer, error)

// NewPromptBuilder 工厂签名。
type NewPromptBuilder func(node *yaml.Node) (contract.PromptBuilder, error)

// NewTranslator 工厂签名。
type NewTranslator func(node *yaml.Node) (contract.Translator, error)

// NewRangeProvider 工厂签名；返回 nil 表示整文模式。
type NewRangeProvider func(node *yaml.Node) (contract.RangeProvider, error)

// StoreEnv: 由运行期决定、不来自 Options 的存储参数。
type StoreEnv struct {
	Root  string // Options.root 为空时使用
	RunID string
}

// NewStore 工厂签名。
type NewStore func(node *yaml.Node, env StoreEnv) (contract.ChunkStore, error)

// Extractor 工厂注册表（显式、零反射）。
var Extractor = map[string]NewExtractor{
	// pdf: 固定边界框内按行抽取
	"pdf": func(node *yaml.Node) (contract.Extractor, error) {
		var opts xpdf.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return xpdf.New(&opts)
	},
}

// Tokenizer 工厂注册表。
var Tokenizer = map[string]NewTokenizer{
	"punkt": func(node *yaml.Node) (contract.Tokenizer, error) {
		var none struct{}
		if err := strictDecode(node, &none); err != nil {
			return nil, err
		}
		return segment.NewPunkt()
	},
	"rule": func(node *yaml.Node) (contract.Tokenizer, error) {
		var none struct{}
		if err := strictDecode(node, &none); err != nil {
			return nil, err
		}
		return segment.Rule{}, nil
	},
}

// PromptBuilder 工厂注册表。
var PromptBuilder = map[string]NewPromptBuilder{
	// translate: 单块翻译提示词
	"translate": func(node *yaml.Node) (contract.PromptBuilder, error) {
		var opts ppt.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return ppt.New(&opts)
	},
}

// Translator 工厂注册表。
var Translator = map[string]NewTranslator{
	"openai": func(node *yaml.Node) (contract.Translator, error) {
		var opts toai.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return toai.New(&opts)
	},
	"eino": func(node *yaml.Node) (contract.Translator, error) {
		var opts teino.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return teino.New(context.Background(), &opts)
	},
	"mock": func(node *yaml.Node) (contract.Translator, error) {
		var opts tmock.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return tmock.New(&opts)
	},
	"flaky": func(node *yaml.Node) (contract.Translator, error) {
		var opts tflaky.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return tflaky.New(&opts)
	},
}

// RangeProvider 工厂注册表。
var RangeProvider = map[string]NewRangeProvider{
	"none": func(node *yaml.Node) (contract.RangeProvider, error) { return nil, nil },
	// prompt: 在终端依次询问起止短语
	"prompt": func(node *yaml.Node) (contract.RangeProvider, error) {
		var none struct{}
		if err := strictDecode(node, &none); err != nil {
			return nil, err
		}
		return rprompt.New(Stdin, Stdout), nil
	},
	"fixed": func(node *yaml.Node) (contract.RangeProvider, error) {
		var opts rfixed.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		return rfixed.New(&opts)
	},
}

// Store 工厂注册表。
var Store = map[string]NewStore{
	// fs: before/ 与 after/ 目录布局
	"fs": func(node *yaml.Node, env StoreEnv) (contract.ChunkStore, error) {
		var opts sfs.Options
		if err := strictDecode(node, &opts); err != nil {
			return nil, err
		}
		if opts.Root == "" {
			opts.Root = env.Root
		}
		opts.RunID = env.RunID
		return sfs.New(&opts)
	},
}
