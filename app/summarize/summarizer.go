package summarize

import (
	"context"
	"strings"
	"sync"
	"vid2doc/app/logger"

	"golang.org/x/text/unicode/norm"
)

// 路由阈值：词数在 (100, 1000) 之间摘要一次，超过 1000 拆半分别摘要，
// 其余原样返回
const (
	summarizeMinWords = 100
	splitMinWords     = 1000
)

// Backend 摘要后端
type Backend interface {
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
}

// Summarizer 按转写词数路由的摘要器。远端后端延迟构造，
// 构造失败（缺密钥、客户端错误）时降级为本地确定性截断摘要，
// 可选的重量级 NLP 后端不可用时绝不阻塞或拖垮管线。
type Summarizer struct {
	log        *logger.Logger
	minLength  int
	maxLength  int
	newBackend func(ctx context.Context) (Backend, error)

	once    sync.Once
	backend Backend
}

// New 创建摘要器
func New(log *logger.Logger, minLength, maxLength int, newBackend func(ctx context.Context) (Backend, error)) *Summarizer {
	if minLength <= 0 {
		minLength = 30
	}
	if maxLength <= 0 {
		maxLength = 150
	}
	return &Summarizer{
		log:        log,
		minLength:  minLength,
		maxLength:  maxLength,
		newBackend: newBackend,
	}
}

// Summarize 按词数路由生成摘要文本
func (s *Summarizer) Summarize(ctx context.Context, text string) string {
	words := strings.Fields(norm.NFC.String(text))
	count := len(words)

	switch {
	case count > splitMinWords:
		// 长文本从中点向后找到句号结尾的词，两半各摘要一次后拼接
		first, second := splitAtSentence(words)
		return s.invoke(ctx, first) + " " + s.invoke(ctx, second)
	case count > summarizeMinWords && count < splitMinWords:
		return s.invoke(ctx, strings.Join(words, " "))
	default:
		// 短文本原样返回
		return text
	}
}

// invoke 调用后端，一切失败路径落到本地降级摘要
func (s *Summarizer) invoke(ctx context.Context, text string) string {
	maxLength := s.maxLength
	if maxLength < s.minLength+5 {
		maxLength = s.minLength + 5
	}

	backend := s.lazyBackend(ctx)
	if backend == nil {
		return FallbackSummarize(text, maxLength)
	}

	result, err := backend.Summarize(ctx, text, maxLength, s.minLength)
	if err != nil {
		s.log.Warnf("远端摘要失败，使用降级摘要: %v", err)
		return FallbackSummarize(text, maxLength)
	}
	return strings.TrimSpace(result)
}

// lazyBackend 首次使用时构造后端，失败后不再重试
func (s *Summarizer) lazyBackend(ctx context.Context) Backend {
	s.once.Do(func() {
		if s.newBackend == nil {
			return
		}
		backend, err := s.newBackend(ctx)
		if err != nil {
			s.log.Warnf("摘要后端构造失败，改用本地降级摘要: %v", err)
			return
		}
		s.backend = backend
	})
	return s.backend
}

// splitAtSentence 在词表中点向后扩展到下一个句号结尾的词处切分
func splitAtSentence(words []string) (string, string) {
	mid := len(words) / 2
	for mid < len(words) && !strings.HasSuffix(words[mid], ".") {
		mid++
	}
	return strings.Join(words[:mid], " "), strings.Join(words[mid:], " ")
}

// FallbackSummarize 本地确定性降级摘要：截断到 maxLength×4 个字符，
// 回退到最近的词边界并追加省略号
func FallbackSummarize(text string, maxLength int) string {
	approxChars := maxLength * 4
	if approxChars < 64 {
		approxChars = 64
	}

	s := strings.TrimSpace(text)
	if len(s) <= approxChars {
		return s
	}

	part := s[:approxChars]
	if idx := strings.LastIndex(part, " "); idx > 0 {
		part = part[:idx]
	}
	return part + "..."
}
