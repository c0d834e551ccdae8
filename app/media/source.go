package media

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"vid2doc/app/utils/cmdexec"
)

// Properties 视频核心元数据，读取开始后不再变更
type Properties struct {
	Path        string
	FileSize    int64
	Duration    float64 // 秒
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
}

// ffprobe JSON 输出结构
type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe 通过 ffprobe 采集视频属性
func Probe(ctx context.Context, runner cmdexec.Runner, ffprobePath, videoPath string) (*Properties, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return nil, fmt.Errorf("视频文件不存在: %w", err)
	}

	res, err := runner.Run(ctx, ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-show_entries", "format=duration,size",
		"-of", "json",
		videoPath,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe 执行失败: %w (stderr: %s)", err, strings.TrimSpace(res.Stderr))
	}

	var out probeOutput
	if err := json.Unmarshal([]byte(res.Stdout), &out); err != nil {
		return nil, fmt.Errorf("解析 ffprobe 输出失败: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("视频不包含视频流: %s", videoPath)
	}

	stream := out.Streams[0]
	props := &Properties{
		Path:     videoPath,
		FileSize: info.Size(),
		Width:    stream.Width,
		Height:   stream.Height,
		FPS:      parseFrameRate(stream.RFrameRate),
	}
	props.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
		props.TotalFrames = n
	} else if props.FPS > 0 {
		// 部分容器不携带帧数，按时长估算
		props.TotalFrames = int(props.Duration * props.FPS)
	}

	if props.Width <= 0 || props.Height <= 0 || props.FPS <= 0 {
		return nil, fmt.Errorf("视频属性无效: width=%d height=%d fps=%.2f", props.Width, props.Height, props.FPS)
	}
	return props, nil
}

// parseFrameRate 解析 "30000/1001" 形式的帧率
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// FrameReader 顺序读取解码帧。通过 ffmpeg rawvideo 管道输出 RGB24，
// 逐帧封装为 image.NRGBA。读取与解码是任务工作协程的阻塞点。
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	width  int
	height int
	buf    []byte
}

// OpenFrameReader 启动 ffmpeg 解码进程，按原生分辨率输出帧
func OpenFrameReader(ctx context.Context, ffmpegPath string, props *Properties) (*FrameReader, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", props.Path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("创建解码管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动解码进程失败: %w", err)
	}

	return &FrameReader{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 1<<20),
		width:  props.Width,
		height: props.Height,
		buf:    make([]byte, props.Width*props.Height*3),
	}, nil
}

// Next 读取下一帧，视频结束返回 io.EOF
func (r *FrameReader) Next() (*image.NRGBA, error) {
	if _, err := io.ReadFull(r.reader, r.buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("读取帧数据失败: %w", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	src := r.buf
	dst := img.Pix
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		dst[j] = src[i]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i+2]
		dst[j+3] = 0xff
	}
	return img, nil
}

// Close 终止解码进程并回收资源
func (r *FrameReader) Close() error {
	if r.stdout != nil {
		r.stdout.Close()
	}
	if r.cmd != nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
		_ = r.cmd.Wait()
	}
	return nil
}

// Grayscale 将帧转为灰度图，供比较器使用
func Grayscale(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}
