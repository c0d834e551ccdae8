package audio

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteFailureLog 把完整 stderr 写入带时间戳的日志文件，返回文件路径。
// 数据库里只存截断摘要，排障时通过该文件查看完整输出。
func WriteFailureLog(dir string, videoID *uint, prefix, stderr string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建失败日志目录失败: %w", err)
	}

	vid := "nogid"
	if videoID != nil {
		vid = fmt.Sprintf("%d", *videoID)
	}
	safePrefix := strings.ReplaceAll(filepath.Base(prefix), " ", "_")
	if ext := filepath.Ext(safePrefix); ext != "" {
		safePrefix = strings.TrimSuffix(safePrefix, ext)
	}
	if safePrefix == "" {
		safePrefix = "ffmpeg"
	}

	name := fmt.Sprintf("%s_%s_%s_%s.stderr.log",
		vid, safePrefix, time.Now().UTC().Format("20060102T150405Z"), randomHex(4))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(stderr), 0640); err != nil {
		return "", fmt.Errorf("写入失败日志失败: %w", err)
	}

	// 日志目录不进版本库
	gitignore := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignore); os.IsNotExist(err) {
		_ = os.WriteFile(gitignore, []byte("*\n"), 0644)
	}
	return path, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000000)
	}
	return hex.EncodeToString(buf)
}
