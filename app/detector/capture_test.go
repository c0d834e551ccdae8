package detector

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestCaptureDualResolution(t *testing.T) {
	native := image.NewNRGBA(image.Rect(0, 0, 200, 100))

	tests := []struct {
		name          string
		scalePercent  float64
		targetPercent float64
		wantProcW     int
		wantProcH     int
		wantTargetW   int
		wantTargetH   int
	}{
		{"双百分比独立生效", 50, 25, 100, 50, 50, 25},
		{"100% 保持原生尺寸", 100, 100, 200, 100, 200, 100},
		{"处理缩小保存不变", 30, 100, 60, 30, 200, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCapture(tt.scalePercent, tt.targetPercent, t.TempDir())

			proc := c.ProcessingFrame(native).Bounds()
			if proc.Dx() != tt.wantProcW || proc.Dy() != tt.wantProcH {
				t.Fatalf("处理分辨率 = %dx%d，期望 %dx%d", proc.Dx(), proc.Dy(), tt.wantProcW, tt.wantProcH)
			}

			target := c.TargetFrame(native).Bounds()
			if target.Dx() != tt.wantTargetW || target.Dy() != tt.wantTargetH {
				t.Fatalf("保存分辨率 = %dx%d，期望 %dx%d", target.Dx(), target.Dy(), tt.wantTargetW, tt.wantTargetH)
			}
		})
	}
}

func TestCaptureMinimumOnePixel(t *testing.T) {
	c := NewCapture(1, 100, t.TempDir())
	tiny := image.NewNRGBA(image.Rect(0, 0, 10, 10))

	// 极端缩放也不应产生零尺寸图像
	b := c.ProcessingFrame(tiny).Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		t.Fatalf("缩放后尺寸不应小于 1 像素，得到 %dx%d", b.Dx(), b.Dy())
	}
}

func TestSaveSlideNaming(t *testing.T) {
	dir := t.TempDir()
	c := NewCapture(100, 100, dir)
	native := image.NewNRGBA(image.Rect(0, 0, 32, 24))

	path, err := c.SaveSlide(native, 7, 130)
	if err != nil {
		t.Fatalf("保存幻灯片失败: %v", err)
	}
	if filepath.Base(path) != "video_7_slide_130.jpg" {
		t.Fatalf("文件名不符合约定: %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("图片文件未写入磁盘: %v", err)
	}
}
