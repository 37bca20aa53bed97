package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"pdftrans/pkg/contract"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(&Options{BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

// TestTranslateSuccess 校验请求体默认参数与响应解析。
func TestTranslateSuccess(t *testing.T) {
	var got oaReq
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-9","created":1700000000,"model":"gpt-3.5-turbo-0125",
			"choices":[{"message":{"role":"assistant","content":" 你好。 "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	})
	res, err := c.Translate(context.Background(), contract.Request{
		Messages: []contract.Message{{Role: "user", Content: "translate: Hello."}},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.Text != "你好。" {
		t.Fatalf("text %q", res.Text)
	}
	want := contract.Usage{ID: "chatcmpl-9", Model: "gpt-3.5-turbo-0125", Created: 1700000000, FinishReason: "stop",
		PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}
	if res.Usage != want {
		t.Fatalf("usage %+v", res.Usage)
	}
	if got.Model != DefaultModel || got.MaxTokens != DefaultMaxTokens || got.Temperature == nil || *got.Temperature != 0.2 {
		t.Fatalf("request defaults %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "translate: Hello." {
		t.Fatalf("messages %+v", got.Messages)
	}
}

// TestTranslateStatusMapping 上游状态码映射。
func TestTranslateStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"429", http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, contract.ErrRateLimited) }},
		{"400", http.StatusBadRequest, func(err error) bool { return errors.Is(err, contract.ErrInvalidInput) }},
		{"503", http.StatusServiceUnavailable, func(err error) bool {
			var ne net.Error
			return errors.As(err, &ne) && !ne.Timeout()
		}},
		{"408", http.StatusRequestTimeout, func(err error) bool {
			var ne net.Error
			return errors.As(err, &ne) && ne.Timeout()
		}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})
			_, err := c.Translate(context.Background(), contract.Request{Text: "x"})
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected err %v", err)
			}
			var ue contract.UpstreamError
			if !errors.As(err, &ue) || ue.UpstreamStatus() != tt.status {
				t.Fatalf("upstream status missing: %v", err)
			}
		})
	}
}

func TestTranslateInvalidBody(t *testing.T) {
	for _, body := range []string{`not json`, `{"choices":[]}`, `{"choices":[{"message":{"content":"  "}}]}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		if _, err := c.Translate(context.Background(), contract.Request{Text: "x"}); !errors.Is(err, contract.ErrResponseInvalid) {
			t.Fatalf("body %q: want response invalid, got %v", body, err)
		}
	}
}

func TestTranslateCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Translate(ctx, contract.Request{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	c, err := New(&Options{EndpointPath: "https://proxy.example/v1/chat"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.url != "https://proxy.example/v1/chat" || c.headers["Authorization"] != "Bearer sk-env" {
		t.Fatalf("url %s headers %v", c.url, c.headers)
	}
}

func TestTranslateEmptyRequest(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := c.Translate(context.Background(), contract.Request{}); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("want invalid input, got %v", err)
	}
}
