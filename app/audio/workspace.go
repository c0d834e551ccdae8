package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SegmentWavPath 计算片段 wav 的输出路径。工作区按视频 ID 分命名空间，
// 避免并发任务互相覆盖文件。
func SegmentWavPath(wavDir string, videoID uint, videoPath string, startFrame, endFrame int) (string, error) {
	namespace := filepath.Join(wavDir, fmt.Sprintf("%d", videoID))
	if err := os.MkdirAll(namespace, 0755); err != nil {
		return "", fmt.Errorf("创建 wav 工作目录失败: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(namespace, fmt.Sprintf("%s-%d-%d.wav", base, startFrame, endFrame)), nil
}

// CleanupWavDir 控制命名空间内保留的 wav 数量，超出上限时按修改时间
// 从最旧的开始删除
func CleanupWavDir(dir string, maxFiles int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type fileInfo struct {
		path  string
		mtime int64
	}
	files := make([]fileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:  filepath.Join(dir, entry.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}
	if len(files) <= maxFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime < files[j].mtime })
	for _, f := range files[:len(files)-maxFiles] {
		_ = os.Remove(f.path)
	}
	return nil
}
