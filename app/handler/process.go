package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"vid2doc/app/config"
	"vid2doc/app/jobs"
	"vid2doc/app/logger"
	"vid2doc/app/service"

	"github.com/gin-gonic/gin"
)

// SSE 轮询任务快照的间隔
const streamPollInterval = 500 * time.Millisecond

// ProcessHandler 视频上传与处理任务处理器
type ProcessHandler struct {
	config    *config.Config
	logger    *logger.Logger
	processor *service.ProcessorService
	registry  *jobs.Registry
}

// NewProcessHandler 创建处理任务处理器
func NewProcessHandler(cfg *config.Config, log *logger.Logger,
	processor *service.ProcessorService, registry *jobs.Registry) *ProcessHandler {
	return &ProcessHandler{
		config:    cfg,
		logger:    log,
		processor: processor,
		registry:  registry,
	}
}

// 创建成功响应
func (h *ProcessHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

// 创建错误响应
func (h *ProcessHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// ProcessRequest 处理请求结构
type ProcessRequest struct {
	VideoPath string                   `json:"video_path" binding:"required"`
	Settings  *service.ProcessSettings `json:"settings"`
}

// Upload 接收视频文件上传，返回落盘路径
func (h *ProcessHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "未携带文件: "+err.Error())
		return
	}

	if err := os.MkdirAll(h.config.Storage.UploadDir, 0755); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "创建上传目录失败")
		return
	}

	// 时间戳前缀避免重名覆盖
	filename := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(file.Filename))
	dst := filepath.Join(h.config.Storage.UploadDir, filename)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "保存上传文件失败: "+err.Error())
		return
	}

	h.logger.Infof("上传完成: %s (%d 字节)", dst, file.Size)
	h.success(c, gin.H{"video_path": dst, "size": file.Size}, "上传成功")
}

// Process 提交处理任务
func (h *ProcessHandler) Process(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	if _, err := os.Stat(req.VideoPath); err != nil {
		h.error(c, http.StatusNotFound, 404, "视频文件不存在: "+req.VideoPath)
		return
	}

	snapshot := h.processor.Submit(req.VideoPath, req.Settings)
	h.success(c, snapshot, "任务已提交")
}

// ListJobs 列出全部任务
func (h *ProcessHandler) ListJobs(c *gin.Context) {
	h.success(c, h.registry.List(), "success")
}

// GetProgress 读取任务进度快照
func (h *ProcessHandler) GetProgress(c *gin.Context) {
	snapshot, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.error(c, http.StatusNotFound, 404, "任务不存在")
		return
	}
	h.success(c, snapshot, "success")
}

// Cancel 请求取消任务。取消是协作式的，接口立即返回，
// 工作协程在下一次轮询时停下。
func (h *ProcessHandler) Cancel(c *gin.Context) {
	if err := h.registry.RequestCancel(c.Param("id")); err != nil {
		h.error(c, http.StatusConflict, 409, err.Error())
		return
	}
	h.success(c, nil, "取消请求已受理")
}

// Stream 以 SSE 推送任务进度，任务进入终态后结束流
func (h *ProcessHandler) Stream(c *gin.Context) {
	jobID := c.Param("id")
	if _, ok := h.registry.Get(jobID); !ok {
		h.error(c, http.StatusNotFound, 404, "任务不存在")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			snapshot, ok := h.registry.Get(jobID)
			if !ok {
				return
			}
			c.SSEvent("progress", snapshot)
			c.Writer.Flush()
			if snapshot.Status.Terminal() {
				return
			}
		}
	}
}
