package handler

import (
	"net/http"
	"vid2doc/app/config"
	"vid2doc/app/utils/cmdexec"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	config *config.Config
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{config: cfg}
}

// Health 返回服务状态与外部工具可用性
func (h *HealthHandler) Health(c *gin.Context) {
	tools := gin.H{
		"ffmpeg":  cmdexec.LookPath(h.config.Audio.FFmpegPath) == nil,
		"ffprobe": cmdexec.LookPath(h.config.Audio.FFprobePath) == nil,
		"whisper": cmdexec.LookPath(h.config.Whisper.BinaryPath) == nil,
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"status": "healthy",
			"tools":  tools,
		},
	})
}
