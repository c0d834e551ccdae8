package summarize

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const summaryPrompt = `请将下面的演讲转写内容压缩为一段摘要，长度控制在 %d 到 %d 个词之间，只输出摘要本身：

---
%s
---`

// geminiBackend 基于 Gemini 的远端摘要后端
type geminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend 构造远端摘要后端。apiKey 为空视为后端不可用，
// 由调用方降级处理。
func NewGeminiBackend(ctx context.Context, apiKey, model string) (Backend, error) {
	if apiKey == "" {
		return nil, errors.New("未配置摘要 API 密钥")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("创建摘要客户端失败: %w", err)
	}

	return &geminiBackend{client: client, model: model}, nil
}

// Summarize 调用模型生成摘要
func (b *geminiBackend) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	prompt := fmt.Sprintf(summaryPrompt, minLength, maxLength, text)

	result, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("生成摘要失败: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errors.New("摘要响应为空")
	}

	var out string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			out += part.Text
		}
	}
	if out == "" {
		return "", errors.New("摘要响应不包含文本")
	}
	return out, nil
}
