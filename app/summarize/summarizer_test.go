package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"vid2doc/app/config"
	"vid2doc/app/logger"
)

// fakeBackend 计数并返回固定摘要的测试后端
type fakeBackend struct {
	calls  int
	result string
	err    error
}

func (b *fakeBackend) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return b.result, nil
}

func testLogger() *logger.Logger {
	return logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
}

// words 生成 n 个以句号结尾的词
func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word."
	}
	return strings.Join(parts, " ")
}

func TestSummarizeShortTextVerbatim(t *testing.T) {
	backend := &fakeBackend{result: "摘要"}
	s := New(testLogger(), 30, 150, func(ctx context.Context) (Backend, error) {
		return backend, nil
	})

	text := words(50)
	got := s.Summarize(context.Background(), text)
	if got != text {
		t.Fatalf("短文本应原样返回，得到 %q", got)
	}
	if backend.calls != 0 {
		t.Fatalf("短文本不应调用后端，调用了 %d 次", backend.calls)
	}
}

func TestSummarizeBoundaryCounts(t *testing.T) {
	tests := []struct {
		name      string
		wordCount int
		wantCalls int
	}{
		{"恰好 100 词原样返回", 100, 0},
		{"101 词摘要一次", 101, 1},
		{"500 词摘要一次", 500, 1},
		{"恰好 1000 词原样返回", 1000, 0},
		{"1500 词拆半各摘要一次", 1500, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{result: "摘要"}
			s := New(testLogger(), 30, 150, func(ctx context.Context) (Backend, error) {
				return backend, nil
			})

			s.Summarize(context.Background(), words(tt.wordCount))
			if backend.calls != tt.wantCalls {
				t.Fatalf("期望后端调用 %d 次，实际 %d 次", tt.wantCalls, backend.calls)
			}
		})
	}
}

func TestSummarizeSplitJoinsWithSingleSpace(t *testing.T) {
	backend := &fakeBackend{result: "摘要"}
	s := New(testLogger(), 30, 150, func(ctx context.Context) (Backend, error) {
		return backend, nil
	})

	got := s.Summarize(context.Background(), words(1500))
	if got != "摘要 摘要" {
		t.Fatalf("拆分摘要应以单个空格拼接，得到 %q", got)
	}
}

func TestSummarizeFallbackOnBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("远端不可用")}
	s := New(testLogger(), 30, 150, func(ctx context.Context) (Backend, error) {
		return backend, nil
	})

	got := s.Summarize(context.Background(), words(500))
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("后端失败应落到降级截断摘要，得到 %q", got)
	}
}

func TestSummarizeFallbackOnConstructorError(t *testing.T) {
	s := New(testLogger(), 30, 150, func(ctx context.Context) (Backend, error) {
		return nil, errors.New("缺少密钥")
	})

	got := s.Summarize(context.Background(), words(500))
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("后端构造失败应落到降级截断摘要，得到 %q", got)
	}
}

func TestFallbackSummarize(t *testing.T) {
	// 每个词 6 字符，maxLength 30 → 截断窗口 120 字符
	text := strings.TrimSpace(strings.Repeat("abcde ", 100))

	got := FallbackSummarize(text, 30)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("截断摘要应以省略号结尾，得到 %q", got)
	}

	// 截断落在词边界：去掉省略号后最后一个词应完整
	body := strings.TrimSuffix(got, "...")
	if !strings.HasSuffix(body, "abcde") {
		t.Fatalf("截断应回退到词边界，得到结尾 %q", body[len(body)-8:])
	}
	if len(body) > 120 {
		t.Fatalf("截断长度 %d 超过窗口 120", len(body))
	}
}

func TestFallbackSummarizeShortTextUntouched(t *testing.T) {
	text := "短文本无需截断"
	if got := FallbackSummarize(text, 150); got != text {
		t.Fatalf("窗口内的文本应原样返回，得到 %q", got)
	}
}
