package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"vid2doc/app/audio"
	"vid2doc/app/config"
	"vid2doc/app/jobs"
	"vid2doc/app/logger"

	"github.com/robfig/cron/v3"
)

// CleanupService 定期维护任务：按计划淘汰过期的终态任务记录，
// 收缩 wav 工作区的磁盘占用。
type CleanupService struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *jobs.Registry
	cron     *cron.Cron
}

// NewCleanupService 创建清理服务，未启用时返回 nil
func NewCleanupService(cfg *config.Config, log *logger.Logger, registry *jobs.Registry) *CleanupService {
	if !cfg.Cleanup.Enabled {
		return nil
	}
	return &CleanupService{
		cfg:      cfg,
		log:      log,
		registry: registry,
		cron:     cron.New(),
	}
}

// Start 注册并启动定时任务
func (s *CleanupService) Start() error {
	if s == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.Cleanup.Schedule, s.runOnce); err != nil {
		return fmt.Errorf("注册清理计划失败: %w", err)
	}
	s.cron.Start()
	s.log.Infof("定期清理已启动，计划: %s", s.cfg.Cleanup.Schedule)
	return nil
}

// Stop 停止定时任务
func (s *CleanupService) Stop() {
	if s == nil {
		return
	}
	s.cron.Stop()
	s.log.Info("定期清理已停止")
}

// runOnce 执行一轮清理
func (s *CleanupService) runOnce() {
	ttl := time.Duration(s.cfg.Cleanup.JobTTL) * time.Hour
	if removed := s.registry.RemoveOlderThan(ttl); removed > 0 {
		s.log.Infof("清理了 %d 个过期任务记录", removed)
	}

	s.cleanupWavWorkspaces()
}

// cleanupWavWorkspaces 遍历各视频的 wav 命名空间并应用文件数上限
func (s *CleanupService) cleanupWavWorkspaces() {
	entries, err := os.ReadDir(s.cfg.Storage.WavDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("读取 wav 工作区失败: %v", err)
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.cfg.Storage.WavDir, entry.Name())
		if err := audio.CleanupWavDir(dir, s.cfg.Audio.MaxWavFiles); err != nil {
			s.log.Warnf("清理 wav 目录失败 %s: %v", dir, err)
		}
	}
}
