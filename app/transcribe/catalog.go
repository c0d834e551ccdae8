package transcribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"vid2doc/app/logger"

	gocache "github.com/patrickmn/go-cache"
	"resty.dev/v3"
)

// whisper.cpp 官方模型清单：规格 → 文件名
var modelCatalog = map[string]string{
	"tiny":   "ggml-tiny.bin",
	"base":   "ggml-base.bin",
	"small":  "ggml-small.bin",
	"medium": "ggml-medium.bin",
	"large":  "ggml-large-v3.bin",
}

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// ModelCache 进程级模型缓存。按模型规格解析并缓存模型文件路径，
// 缺失时下载一次；首次写入生效，模型加载后只读，无需回收。
type ModelCache struct {
	mu       sync.Mutex
	resolved *gocache.Cache
	modelDir string
	log      *logger.Logger
	download func(ctx context.Context, url, dest string) error
}

// NewModelCache 创建模型缓存
func NewModelCache(modelDir string, log *logger.Logger) *ModelCache {
	c := &ModelCache{
		resolved: gocache.New(gocache.NoExpiration, 0),
		modelDir: modelDir,
		log:      log,
	}
	c.download = c.restyDownload
	return c
}

// Ensure 解析模型规格到本地文件路径，必要时下载。
// 并发首次填充安全：整个解析过程持有互斥锁。
func (c *ModelCache) Ensure(ctx context.Context, size string) (string, error) {
	if size == "" {
		size = "base"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.resolved.Get(size); ok {
		return path.(string), nil
	}

	fileName, ok := modelCatalog[size]
	if !ok {
		return "", fmt.Errorf("未知的模型规格: %s", size)
	}

	path := filepath.Join(c.modelDir, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		c.log.Infof("模型文件缺失，开始下载: %s", fileName)
		if err := os.MkdirAll(c.modelDir, 0755); err != nil {
			return "", fmt.Errorf("创建模型目录失败: %w", err)
		}
		if err := c.download(ctx, modelBaseURL+fileName, path); err != nil {
			return "", fmt.Errorf("下载模型失败: %w", err)
		}
		c.log.Infof("模型下载完成: %s", path)
	}

	// 仅在确认可用后写入缓存
	c.resolved.Set(size, path, gocache.NoExpiration)
	return path, nil
}

// restyDownload 通过 HTTP 下载模型文件，先写临时文件再原子替换
func (c *ModelCache) restyDownload(ctx context.Context, url, dest string) error {
	client := resty.New()
	defer client.Close()

	resp, err := client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("下载返回状态码 %d", resp.StatusCode())
	}

	tmp := dest + ".part"
	if err := os.WriteFile(tmp, resp.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
