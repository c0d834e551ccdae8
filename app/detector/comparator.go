package detector

import (
	"image"
	"math"
)

// SSIM 常数，按标准取 K1=0.01 K2=0.03，L=255
const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
	// 均匀窗口边长
	ssimWindow = 7
)

// Comparator 帧比较器。对相邻帧计算两路独立的相似度分数：
// 结构相似度（灰度 SSIM，对版式与内容变化敏感）和
// 直方图相关性（对 SSIM 不敏感的亮度渐变类变化敏感）。
// 纯函数：相同输入恒定产生相同输出。
type Comparator struct {
	bins int
}

// NewComparator 创建比较器，bins 为直方图分桶数
func NewComparator(bins int) *Comparator {
	if bins <= 0 {
		bins = 256
	}
	return &Comparator{bins: bins}
}

// Compare 计算两帧的 (结构分数, 直方图分数)，均在 [0,1]，1 表示完全相同。
// 两帧必须是同尺寸的处理分辨率灰度图。
func (c *Comparator) Compare(prev, curr *image.Gray) (float64, float64) {
	return ssimScore(prev, curr), c.histScore(prev, curr)
}

// ssimScore 均匀 7x7 窗口 SSIM 的全图均值，基于积分图计算局部统计量
func ssimScore(a, b *image.Gray) float64 {
	w := a.Bounds().Dx()
	h := a.Bounds().Dy()
	if w != b.Bounds().Dx() || h != b.Bounds().Dy() || w == 0 || h == 0 {
		return 0
	}

	win := ssimWindow
	if win > w {
		win = w
	}
	if win > h {
		win = h
	}

	// 积分图：x、y、x²、y²、xy
	sumA, sumB, sumAA, sumBB, sumAB := integrals(a, b, w, h)

	n := float64(win * win)
	var total float64
	var count int
	for y := 0; y+win <= h; y++ {
		for x := 0; x+win <= w; x++ {
			sa := boxSum(sumA, w, x, y, win)
			sb := boxSum(sumB, w, x, y, win)
			saa := boxSum(sumAA, w, x, y, win)
			sbb := boxSum(sumBB, w, x, y, win)
			sab := boxSum(sumAB, w, x, y, win)

			muA := sa / n
			muB := sb / n
			varA := saa/n - muA*muA
			varB := sbb/n - muB*muB
			cov := sab/n - muA*muB

			num := (2*muA*muB + ssimC1) * (2*cov + ssimC2)
			den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
			total += num / den
			count++
		}
	}
	if count == 0 {
		return 0
	}
	score := total / float64(count)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// integrals 一次遍历构建五张积分图，尺寸 (w+1)*(h+1)
func integrals(a, b *image.Gray, w, h int) (sa, sb, saa, sbb, sab []float64) {
	stride := w + 1
	sa = make([]float64, stride*(h+1))
	sb = make([]float64, stride*(h+1))
	saa = make([]float64, stride*(h+1))
	sbb = make([]float64, stride*(h+1))
	sab = make([]float64, stride*(h+1))

	for y := 0; y < h; y++ {
		rowA := a.Pix[y*a.Stride:]
		rowB := b.Pix[y*b.Stride:]
		base := (y + 1) * stride
		prev := y * stride
		for x := 0; x < w; x++ {
			va := float64(rowA[x])
			vb := float64(rowB[x])
			idx := base + x + 1
			sa[idx] = va + sa[base+x] + sa[prev+x+1] - sa[prev+x]
			sb[idx] = vb + sb[base+x] + sb[prev+x+1] - sb[prev+x]
			saa[idx] = va*va + saa[base+x] + saa[prev+x+1] - saa[prev+x]
			sbb[idx] = vb*vb + sbb[base+x] + sbb[prev+x+1] - sbb[prev+x]
			sab[idx] = va*vb + sab[base+x] + sab[prev+x+1] - sab[prev+x]
		}
	}
	return
}

// boxSum 取积分图上 (x,y) 起 win*win 窗口的和
func boxSum(s []float64, w, x, y, win int) float64 {
	stride := w + 1
	x2 := x + win
	y2 := y + win
	return s[y2*stride+x2] - s[y*stride+x2] - s[y2*stride+x] + s[y*stride+x]
}

// histScore 单通道（灰度面）直方图的皮尔逊相关系数，负相关截断为 0。
// 通道选择与观测到的默认路径保持一致，色相单独变化仍可能欠检测。
func (c *Comparator) histScore(a, b *image.Gray) float64 {
	ha := c.histogram(a)
	hb := c.histogram(b)

	meanA := mean(ha)
	meanB := mean(hb)

	var num, denA, denB float64
	for i := 0; i < c.bins; i++ {
		da := ha[i] - meanA
		db := hb[i] - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}
	den := math.Sqrt(denA * denB)
	if den == 0 {
		// 两侧均无方差：完全一致视为 1，否则 0
		if equalHist(ha, hb) {
			return 1
		}
		return 0
	}
	score := num / den
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

func (c *Comparator) histogram(img *image.Gray) []float64 {
	hist := make([]float64, c.bins)
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for _, v := range row {
			hist[int(v)*c.bins/256]++
		}
	}
	return hist
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func equalHist(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
