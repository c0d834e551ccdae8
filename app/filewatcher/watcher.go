package filewatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"vid2doc/app/config"
	"vid2doc/app/logger"

	"github.com/fsnotify/fsnotify"
)

// 默认识别的视频扩展名
var videoExtensions = []string{".mp4", ".mkv", ".mov", ".avi", ".webm", ".flv"}

// Submitter 任务提交协作者，由处理服务实现
type Submitter interface {
	SubmitPath(videoPath string) (jobID string)
}

// InboxWatcher 收件目录监控器。新视频文件落入收件目录并写入
// 稳定后自动提交处理任务，省去手动上传步骤。
type InboxWatcher struct {
	inboxDir      string
	settleSeconds int
	watcher       *fsnotify.Watcher
	submitter     Submitter
	logger        *logger.Logger
	stopCh        chan struct{}
	wg            sync.WaitGroup
	watching      bool
	mu            sync.Mutex
}

// NewInboxWatcher 创建收件目录监控器，未启用时返回 nil
func NewInboxWatcher(cfg *config.Config, submitter Submitter, log *logger.Logger) (*InboxWatcher, error) {
	if !cfg.Watcher.Enabled {
		return nil, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	settle := cfg.Watcher.SettleSeconds
	if settle <= 0 {
		settle = 3
	}

	return &InboxWatcher{
		inboxDir:      cfg.Storage.InboxDir,
		settleSeconds: settle,
		watcher:       watcher,
		submitter:     submitter,
		logger:        log,
		stopCh:        make(chan struct{}),
	}, nil
}

// Start 启动收件目录监控
func (w *InboxWatcher) Start() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		return fmt.Errorf("收件目录监控已经在运行")
	}

	if err := os.MkdirAll(w.inboxDir, 0755); err != nil {
		return fmt.Errorf("创建收件目录失败: %w", err)
	}
	if err := w.watcher.Add(w.inboxDir); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}

	w.watching = true
	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Infof("收件目录监控已启动: %s", w.inboxDir)
	return nil
}

// Stop 停止监控
func (w *InboxWatcher) Stop() error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watching {
		return nil
	}

	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.watching = false

	w.logger.Info("收件目录监控已停止")
	return nil
}

// watchLoop 监控事件循环
func (w *InboxWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("收件目录监控错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent 处理文件系统事件，只关心新建的视频文件
func (w *InboxWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}
	if !isVideoFile(event.Name) {
		w.logger.Debugf("忽略非视频文件: %s", event.Name)
		return
	}

	// 等待与提交异步进行，避免阻塞监控循环
	go func() {
		if err := w.waitForFileReady(event.Name); err != nil {
			w.logger.Warnf("等待文件就绪失败: %s, 错误: %v", event.Name, err)
			return
		}
		jobID := w.submitter.SubmitPath(event.Name)
		w.logger.Infof("收件文件已提交处理: %s (任务 %s)", event.Name, jobID)
	}()
}

// waitForFileReady 轮询文件大小直到连续稳定，认为写入完成
func (w *InboxWatcher) waitForFileReady(filePath string) error {
	maxWait := 10 * time.Minute
	checkInterval := time.Duration(w.settleSeconds) * time.Second
	timeout := time.After(maxWait)

	var lastSize int64 = -1
	for {
		select {
		case <-timeout:
			return fmt.Errorf("等待文件就绪超时: %s", filePath)
		case <-w.stopCh:
			return fmt.Errorf("监控已停止")
		case <-time.After(checkInterval):
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("获取文件信息失败: %w", err)
			}
			currentSize := info.Size()
			if currentSize == lastSize && currentSize > 0 {
				return nil
			}
			lastSize = currentSize
		}
	}
}

// isVideoFile 按扩展名判断是否视频文件
func isVideoFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range videoExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
