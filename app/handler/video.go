package handler

import (
	"net/http"
	"strconv"
	"vid2doc/app/model"
	"vid2doc/app/service"

	"github.com/gin-gonic/gin"
)

// VideoHandler 处理结果查询处理器
type VideoHandler struct {
	store *service.StoreService
}

// NewVideoHandler 创建查询处理器
func NewVideoHandler(store *service.StoreService) *VideoHandler {
	return &VideoHandler{store: store}
}

// 创建成功响应
func (h *VideoHandler) success(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": message,
		"data":    data,
	})
}

// 创建错误响应
func (h *VideoHandler) error(c *gin.Context, statusCode int, errorCode int, message string) {
	c.JSON(statusCode, gin.H{
		"code":    errorCode,
		"message": message,
		"data":    nil,
	})
}

// SlideWithText 幻灯片及其文本的组合视图
type SlideWithText struct {
	Slide    model.Slide         `json:"slide"`
	Extracts []model.TextExtract `json:"extracts"`
}

// UpdateTextRequest 编辑最终文本的请求结构
type UpdateTextRequest struct {
	FinalText string `json:"final_text" binding:"required"`
}

// ListVideos 列出全部视频
func (h *VideoHandler) ListVideos(c *gin.Context) {
	videos, err := h.store.ListVideos()
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询视频失败: "+err.Error())
		return
	}
	h.success(c, videos, "success")
}

// GetVideo 读取单个视频
func (h *VideoHandler) GetVideo(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的视频 ID")
		return
	}

	video, err := h.store.GetVideo(id)
	if err != nil {
		h.error(c, http.StatusNotFound, 404, "视频不存在")
		return
	}
	h.success(c, video, "success")
}

// GetSlides 列出视频的幻灯片及文本，按出现顺序
func (h *VideoHandler) GetSlides(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的视频 ID")
		return
	}

	slides, err := h.store.ListSlides(id)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询幻灯片失败: "+err.Error())
		return
	}

	result := make([]SlideWithText, 0, len(slides))
	for _, slide := range slides {
		extracts, err := h.store.ListTextExtracts(slide.ID)
		if err != nil {
			h.error(c, http.StatusInternalServerError, 500, "查询文本失败: "+err.Error())
			return
		}
		result = append(result, SlideWithText{Slide: slide, Extracts: extracts})
	}
	h.success(c, result, "success")
}

// UpdateFinalText 编辑层修改文本记录的最终文本
func (h *VideoHandler) UpdateFinalText(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		h.error(c, http.StatusBadRequest, 400, "无效的文本记录 ID")
		return
	}

	var req UpdateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	if err := h.store.UpdateFinalText(id, req.FinalText); err != nil {
		h.error(c, http.StatusInternalServerError, 500, "更新文本失败: "+err.Error())
		return
	}
	h.success(c, nil, "更新成功")
}

// ListAudioFailures 列出音频失败记录，支持 video_id 过滤
func (h *VideoHandler) ListAudioFailures(c *gin.Context) {
	var videoID *uint
	if raw := c.Query("video_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			h.error(c, http.StatusBadRequest, 400, "无效的视频 ID")
			return
		}
		videoID = &id
	}

	failures, err := h.store.ListAudioFailures(videoID)
	if err != nil {
		h.error(c, http.StatusInternalServerError, 500, "查询失败记录失败: "+err.Error())
		return
	}
	h.success(c, failures, "success")
}

// parseID 解析路径中的数字 ID
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	return uint(id), err
}
