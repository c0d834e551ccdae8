package media

import (
	"image"
	"image/color"
	"testing"
)

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"整数分数", "30/1", 30},
		{"NTSC 分数", "30000/1001", 30000.0 / 1001},
		{"纯数字", "25", 25},
		{"零分母", "30/0", 0},
		{"非法输入", "abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseFrameRate(tt.input); got != tt.want {
				t.Fatalf("parseFrameRate(%q) = %v，期望 %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestGrayscale(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	gray := Grayscale(img)
	if gray.Bounds() != img.Bounds() {
		t.Fatalf("灰度图尺寸应与原图一致")
	}

	// 所有像素同色，灰度值应一致且落在通道值之间
	v := gray.GrayAt(0, 0).Y
	if v <= 50 || v >= 200 {
		t.Fatalf("灰度值 %d 应落在通道极值之间", v)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if gray.GrayAt(x, y).Y != v {
				t.Fatalf("同色像素的灰度值应一致")
			}
		}
	}
}
