package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"vid2doc/app/logger"
	"vid2doc/app/utils/cmdexec"
)

// stderr 入库前的截断上限（完整内容写入日志文件）
const stderrTruncateLimit = 2000

// 重试退避基数：第 n 次失败后等待 0.6s × n
const retryBackoffBase = 600 * time.Millisecond

// FailureRecorder 失败记录协作者，按工具维度追加结构化失败记录
type FailureRecorder interface {
	RecordAudioFailure(videoID, slideID *uint, startFrame, endFrame, attempts int, tool, message, stderr, details string)
}

// Extractor 音频片段提取器。主路径为 ffmpeg 快速定位切割；
// 重试耗尽后降级为整体解码 + 区间钳制的回退路径。两路都失败时
// 各记录一条失败并交由调用方返回空转写，绝不向任务抛出。
type Extractor struct {
	runner        cmdexec.Runner
	recorder      FailureRecorder
	log           *logger.Logger
	ffmpegPath    string
	ffprobePath   string
	retryAttempts int
	failLogDir    string
	sleep         func(time.Duration) // 测试中替换
}

// NewExtractor 创建提取器
func NewExtractor(runner cmdexec.Runner, recorder FailureRecorder, log *logger.Logger,
	ffmpegPath, ffprobePath, failLogDir string, retryAttempts int) *Extractor {
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	return &Extractor{
		runner:        runner,
		recorder:      recorder,
		log:           log,
		ffmpegPath:    ffmpegPath,
		ffprobePath:   ffprobePath,
		retryAttempts: retryAttempts,
		failLogDir:    failLogDir,
		sleep:         time.Sleep,
	}
}

// ExtractSegment 切出 [startFrame, endFrame) 的音频为 16kHz 单声道 PCM WAV。
// 返回错误表示两路都已失败且失败记录已写入。
func (e *Extractor) ExtractSegment(ctx context.Context, videoPath string, videoID *uint,
	startFrame, endFrame int, fps float64, outputPath string) error {

	startTime := float64(startFrame) / fps
	duration := float64(endFrame-startFrame) / fps

	// 主路径：输入侧快速定位，带线性退避重试
	var lastStderr string
	for attempt := 1; attempt <= e.retryAttempts; attempt++ {
		res, err := e.runner.Run(ctx, e.ffmpegPath,
			"-hide_banner", "-loglevel", "error",
			"-ss", formatSeconds(startTime),
			"-t", formatSeconds(duration),
			"-i", videoPath,
			"-vn", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
			"-y", outputPath,
		)
		if err == nil {
			e.log.Infof("音频片段提取成功: %d→%d (第 %d 次尝试)", startFrame, endFrame, attempt)
			return nil
		}
		lastStderr = res.Stderr
		e.log.Warnf("ffmpeg 第 %d 次提取失败 %d→%d: %v", attempt, startFrame, endFrame, err)
		if attempt < e.retryAttempts {
			e.sleep(retryBackoffBase * time.Duration(attempt))
		}
	}

	e.log.Errorf("ffmpeg 重试 %d 次后仍失败: %d→%d", e.retryAttempts, startFrame, endFrame)
	e.recordFailure(videoID, startFrame, endFrame, e.retryAttempts, "ffmpeg",
		fmt.Sprintf("ffmpeg 提取失败（%d 次重试）", e.retryAttempts), lastStderr, outputPath)

	// 回退路径：读取实际时长并钳制区间，从头解码输出侧定位
	if err := e.fallbackExtract(ctx, videoPath, startTime, duration, outputPath); err != nil {
		e.log.Errorf("回退解码同样失败: %v", err)
		e.recordFailure(videoID, startFrame, endFrame, e.retryAttempts, "fallback-decoder",
			fmt.Sprintf("回退解码失败: %v", err), err.Error(), outputPath)
		return fmt.Errorf("音频提取失败（主路径与回退路径均失败）: %w", err)
	}

	e.log.Infof("回退解码成功: %s", outputPath)
	return nil
}

// fallbackExtract 回退路径：按实际片长钳制时间窗后整体解码
func (e *Extractor) fallbackExtract(ctx context.Context, videoPath string, startTime, duration float64, outputPath string) error {
	clipDuration, err := e.probeDuration(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("探测片长失败: %w", err)
	}

	start := clamp(startTime, 0, clipDuration)
	end := clamp(startTime+duration, 0, clipDuration)
	if end <= start {
		return fmt.Errorf("无效的子区间: start=%.3f end=%.3f", start, end)
	}

	res, err := e.runner.Run(ctx, e.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end-start),
		"-vn", "-ar", "16000", "-ac", "1", "-c:a", "pcm_s16le",
		"-y", outputPath,
	)
	if err != nil {
		return fmt.Errorf("回退解码执行失败: %w (stderr: %s)", err, truncateStderr(res.Stderr))
	}
	return nil
}

// probeDuration 读取视频实际时长
func (e *Extractor) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	res, err := e.runner.Run(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, err
	}
	var d float64
	if _, err := fmt.Sscanf(res.Stdout, "%f", &d); err != nil {
		return 0, fmt.Errorf("解析时长失败: %w", err)
	}
	return d, nil
}

// recordFailure 写入完整日志文件并追加截断后的失败记录
func (e *Extractor) recordFailure(videoID *uint, startFrame, endFrame, attempts int, tool, message, stderr, prefix string) {
	logPath, err := WriteFailureLog(e.failLogDir, videoID, prefix, stderr)
	if err != nil {
		e.log.Warnf("写入失败日志文件失败: %v", err)
	}

	details := ""
	if logPath != "" {
		raw, _ := json.Marshal(map[string]string{"ffmpeg_log_path": logPath})
		details = string(raw)
	}
	e.recorder.RecordAudioFailure(videoID, nil, startFrame, endFrame, attempts,
		tool, message, truncateStderr(stderr), details)
}

// truncateStderr 截断 stderr 到入库上限
func truncateStderr(s string) string {
	if len(s) > stderrTruncateLimit {
		return s[:stderrTruncateLimit] + "...(truncated)"
	}
	return s
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
