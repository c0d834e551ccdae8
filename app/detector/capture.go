package detector

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Capture 双分辨率捕获。比较分辨率（scale_percent）与保存分辨率
// （target_resolution_percent）相互独立，均从同一次原生解码缩放得到：
// 保存图片的尺寸只由 target_resolution_percent 决定。
type Capture struct {
	scalePercent  float64
	targetPercent float64
	outputDir     string
}

// NewCapture 创建捕获器，两个百分比默认为 100
func NewCapture(scalePercent, targetPercent float64, outputDir string) *Capture {
	if scalePercent <= 0 {
		scalePercent = 100
	}
	if targetPercent <= 0 {
		targetPercent = 100
	}
	return &Capture{
		scalePercent:  scalePercent,
		targetPercent: targetPercent,
		outputDir:     outputDir,
	}
}

// ProcessingFrame 将原生帧缩放到处理分辨率，仅用于相似度比较。
// Box 滤波做区域平均，与面积插值等效。
func (c *Capture) ProcessingFrame(native image.Image) image.Image {
	return scaleByPercent(native, c.scalePercent)
}

// TargetFrame 将原生帧缩放到保存分辨率
func (c *Capture) TargetFrame(native image.Image) image.Image {
	return scaleByPercent(native, c.targetPercent)
}

// SaveSlide 在边界确认时把目标分辨率帧保存为 JPEG，返回图片路径
func (c *Capture) SaveSlide(native image.Image, videoID uint, frameIdx int) (string, error) {
	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}

	path := filepath.Join(c.outputDir, fmt.Sprintf("video_%d_slide_%d.jpg", videoID, frameIdx))
	if err := imaging.Save(c.TargetFrame(native), path, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("保存幻灯片图片失败: %w", err)
	}
	return path, nil
}

// scaleByPercent 按百分比缩放，100% 直接返回原帧
func scaleByPercent(img image.Image, percent float64) image.Image {
	if percent == 100 {
		return img
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	nw := int(float64(w)*percent/100 + 0.5)
	nh := int(float64(h)*percent/100 + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return imaging.Resize(img, nw, nh, imaging.Box)
}
