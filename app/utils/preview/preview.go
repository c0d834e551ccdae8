package preview

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// 缩略图固定宽度，高度按比例
const thumbWidth = 480

// Render 生成带时间戳角标的预览缩略图，返回图片路径。
// 预览只服务于进度页展示，失败由调用方忽略。
func Render(frame image.Image, outputDir string, jobID string, frameIdx int, timestamp float64) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建预览目录失败: %w", err)
	}

	thumb := imaging.Resize(frame, thumbWidth, 0, imaging.Box)

	dc := gg.NewContextForImage(thumb)
	label := fmt.Sprintf("#%d  %s", frameIdx, formatTimestamp(timestamp))

	dc.SetFontFace(basicfont.Face7x13)
	tw, th := dc.MeasureString(label)

	// 左下角半透明底条加文字
	pad := 6.0
	y := float64(dc.Height()) - th - pad*2
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, y, tw+pad*2, th+pad*2)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(label, pad, float64(dc.Height())-pad-2)

	path := filepath.Join(outputDir, fmt.Sprintf("preview_%s.jpg", jobID))
	if err := imaging.Save(dc.Image(), path, imaging.JPEGQuality(80)); err != nil {
		return "", fmt.Errorf("保存预览图失败: %w", err)
	}
	return path, nil
}

// formatTimestamp 秒数格式化为 mm:ss
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
