package registry

import (
	"context"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pdftrans/pkg/contract"
	sfs "pdftrans/plugins/store/filesystem"
)

func node(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(src), &n); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return n.Content[0]
	}
	return &n
}

// TestStrictDecode 验证严格解码逻辑。
func TestStrictDecode(t *testing.T) {
	type opt struct {
		A int `yaml:"a"`
	}
	var o opt
	if err := strictDecode(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictDecode(node(t, "a: 1"), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 YAML 解析失败: %v", err)
	}
	if err := strictDecode(node(t, `{"a": 2}`), &o); err != nil || o.A != 2 {
		t.Fatalf("JSON 风格解析失败: %v", err)
	}
	if err := strictDecode(node(t, "a: 1\nb: 2"), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口：空选项可构造，未知字段报错。
func TestFactories(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	unknown := node(t, "bogus: 1")
	check := func(name string, build func(*yaml.Node) error) {
		t.Run(name, func(t *testing.T) {
			if err := build(nil); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if err := build(unknown); err == nil {
				t.Fatalf("%s 未对未知字段报错", name)
			}
		})
	}
	check("extractor/pdf", func(n *yaml.Node) error { _, err := Extractor["pdf"](n); return err })
	check("tokenizer/rule", func(n *yaml.Node) error { _, err := Tokenizer["rule"](n); return err })
	check("tokenizer/punkt", func(n *yaml.Node) error { _, err := Tokenizer["punkt"](n); return err })
	check("prompt/translate", func(n *yaml.Node) error { _, err := PromptBuilder["translate"](n); return err })
	check("translator/openai", func(n *yaml.Node) error { _, err := Translator["openai"](n); return err })
	check("translator/eino", func(n *yaml.Node) error { _, err := Translator["eino"](n); return err })
	check("translator/mock", func(n *yaml.Node) error { _, err := Translator["mock"](n); return err })
	check("translator/flaky", func(n *yaml.Node) error { _, err := Translator["flaky"](n); return err })
	check("range/prompt", func(n *yaml.Node) error { _, err := RangeProvider["prompt"](n); return err })
	check("store/fs", func(n *yaml.Node) error {
		_, err := Store["fs"](n, StoreEnv{Root: t.TempDir()})
		return err
	})
}

func TestRangeProviders(t *testing.T) {
	p, err := RangeProvider["none"](nil)
	if err != nil || p != nil {
		t.Fatalf("none 应返回 nil: %v %v", p, err)
	}
	if _, err := RangeProvider["fixed"](nil); err == nil {
		t.Fatalf("fixed 缺少短语应报错")
	}
	p, err = RangeProvider["fixed"](node(t, "begin: Intro\nend: Summary"))
	if err != nil {
		t.Fatalf("fixed: %v", err)
	}
	b, e, err := p.Phrases(context.Background())
	if err != nil || b != "Intro" || e != "Summary" {
		t.Fatalf("phrases %q %q %v", b, e, err)
	}

	old := Stdin
	t.Cleanup(func() { Stdin = old })
	Stdin = strings.NewReader("q\n")
	p, err = RangeProvider["prompt"](nil)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if b, _, err := p.Phrases(context.Background()); err != nil || b != contract.AbortSentinel {
		t.Fatalf("prompt phrases %q %v", b, err)
	}
}

func TestStoreEnv(t *testing.T) {
	root := t.TempDir()
	st, err := Store["fs"](node(t, "merged_name: out.txt"), StoreEnv{Root: root, RunID: "r1"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	fs, ok := st.(*sfs.FS)
	if !ok || fs.Root() != root || !strings.HasSuffix(fs.MergedPath(), "out.txt") {
		t.Fatalf("store env not applied: %#v", st)
	}
}
