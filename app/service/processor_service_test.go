package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"vid2doc/app/audio"
	"vid2doc/app/config"
	"vid2doc/app/jobs"
	"vid2doc/app/logger"
	"vid2doc/app/media"
	"vid2doc/app/model"
	"vid2doc/app/summarize"
	"vid2doc/app/transcribe"
	"vid2doc/app/utils/cmdexec"
)

func testProcessorConfig() *config.Config {
	return &config.Config{
		Detect: config.DetectConfig{
			ThresholdSSIM:           0.9,
			ThresholdHist:           0.9,
			FrameGap:                10,
			TransitionLimit:         3,
			ScalePercent:            100,
			TargetResolutionPercent: 100,
			HistogramBins:           256,
		},
		Whisper: config.WhisperConfig{Model: "base"},
		Audio:   config.AudioConfig{MinSlideAudioSeconds: 0},
	}
}

// okRunner 任何命令都立即成功的执行器
type okRunner struct{}

func (okRunner) Run(ctx context.Context, name string, args ...string) (cmdexec.Result, error) {
	return cmdexec.Result{}, nil
}

// testProcessor 装配一个不依赖外部工具链的处理服务。
// 转写器指向不存在的二进制，转写固定降级为空串。
func testProcessor(t *testing.T) (*ProcessorService, *jobs.Registry, *StoreService) {
	t.Helper()

	cfg := testProcessorConfig()
	cfg.Storage = config.StorageConfig{
		WavDir:     t.TempDir(),
		FailLogDir: t.TempDir(),
		OutputDir:  t.TempDir(),
	}
	cfg.Audio.RetryAttempts = 3
	cfg.Audio.FFmpegPath = "ffmpeg"
	cfg.Audio.FFprobePath = "ffprobe"
	cfg.Job = config.JobConfig{ProgressThrottleSeconds: 0.5, ProgressMinDelta: 1.0, MaxLogEntries: 200, MaxExtracts: 25}

	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	store := testStore(t)
	registry := jobs.NewRegistry(cfg.Job, log, store)

	runner := okRunner{}
	p := &ProcessorService{
		cfg:      cfg,
		log:      log,
		registry: registry,
		store:    store,
		runner:   runner,
		extractor: audio.NewExtractor(runner, store, log,
			cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath, cfg.Storage.FailLogDir, cfg.Audio.RetryAttempts),
		transcriber: transcribe.NewTranscriber(runner, transcribe.NewModelCache(t.TempDir(), log),
			store, log, "missing-transcriber-binary", "auto", 4),
		summarizer: summarize.New(log, 30, 150, nil),
	}
	return p, registry, store
}

func TestSettleSegmentDeferral(t *testing.T) {
	p, registry, store := testProcessor(t)

	snap := registry.Create("a.mp4")
	video := &model.Video{Filename: "a.mp4", OriginalPath: "a.mp4", FPS: 30, TotalFrames: 900}
	if err := store.CreateVideo(video); err != nil {
		t.Fatalf("创建视频失败: %v", err)
	}
	slide := &model.Slide{VideoID: video.ID, FrameNumber: 0, ImagePath: "p.jpg"}
	if err := store.CreateSlide(slide); err != nil {
		t.Fatalf("创建幻灯片失败: %v", err)
	}

	// 30 帧 @30fps = 1.0s，低于 2.0s 最短时长：并入下一段，
	// 起点不前移，且不结算（调用方据此跳过该边界的幻灯片捕获）
	settings := p.resolve(nil)
	settings.minSlideAudioSeconds = 2.0
	got, settled := p.settleSegment(context.Background(), snap.ID, video, slide, 0, 30, 30, settings)
	if got != 0 || settled {
		t.Fatalf("短片段应并入下一段且不结算，得到 start=%d settled=%v", got, settled)
	}
	if extracts, _ := store.ListTextExtracts(slide.ID); len(extracts) != 0 {
		t.Fatalf("短片段不应产生文本记录")
	}

	// 最短时长为 0：同样的片段正常结算，起点前移到边界
	settings.minSlideAudioSeconds = 0
	got, settled = p.settleSegment(context.Background(), snap.ID, video, slide, 0, 30, 30, settings)
	if got != 30 || !settled {
		t.Fatalf("正常片段结算后起点应前移到 30，得到 start=%d settled=%v", got, settled)
	}

	// 转写降级为空串，但文本记录照常落库
	extracts, _ := store.ListTextExtracts(slide.ID)
	if len(extracts) != 1 {
		t.Fatalf("结算后应有 1 条文本记录，得到 %d", len(extracts))
	}
	if extracts[0].OriginalText != "" {
		t.Fatalf("转写不可用时原文应为空串: %q", extracts[0].OriginalText)
	}
}

// fakeDecoder 生成一个把预置原始帧流写到标准输出的假解码器脚本
func fakeDecoder(t *testing.T, frames []byte) string {
	t.Helper()

	dir := t.TempDir()
	raw := filepath.Join(dir, "frames.raw")
	if err := os.WriteFile(raw, frames, 0o644); err != nil {
		t.Fatalf("写入帧数据失败: %v", err)
	}
	script := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexec cat \""+raw+"\"\n"), 0o755); err != nil {
		t.Fatalf("写入解码脚本失败: %v", err)
	}
	return script
}

// rawFrames 生成 n 帧纯色 RGB24 帧数据
func rawFrames(w, h, n int, r, g, b byte) []byte {
	frame := make([]byte, w*h*3)
	for i := 0; i < len(frame); i += 3 {
		frame[i], frame[i+1], frame[i+2] = r, g, b
	}
	out := make([]byte, 0, len(frame)*n)
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

// runShortClip 以指定最短片段时长跑完 1 秒红蓝双色短片（边界约 0.5s 处），
// 返回落库的幻灯片与终态任务快照
func runShortClip(t *testing.T, minAudio float64) ([]model.Slide, jobs.Snapshot) {
	t.Helper()

	p, registry, store := testProcessor(t)
	p.cfg.Job.PreviewInterval = 3

	stream := append(rawFrames(8, 8, 5, 255, 0, 0), rawFrames(8, 8, 5, 0, 0, 255)...)
	p.cfg.Audio.FFmpegPath = fakeDecoder(t, stream)

	video := &model.Video{Filename: "short.mp4", OriginalPath: "short.mp4",
		FPS: 10, TotalFrames: 10, Width: 8, Height: 8}
	if err := store.CreateVideo(video); err != nil {
		t.Fatalf("创建视频失败: %v", err)
	}
	props := &media.Properties{Path: "short.mp4", Width: 8, Height: 8,
		FPS: 10, TotalFrames: 10, Duration: 1}

	snap := registry.Create("short.mp4")
	registry.MarkStarting(snap.ID)
	registry.Apply(snap.ID, jobs.Event{Type: jobs.EventStarted,
		TotalFrames: 10, FPS: 10, VideoID: &video.ID})

	settings := p.resolve(nil)
	settings.frameGap = 2
	settings.transitionLimit = 1
	settings.minSlideAudioSeconds = minAudio

	if err := p.processFrames(context.Background(), snap.ID, video, props, settings); err != nil {
		t.Fatalf("处理帧失败: %v", err)
	}

	slides, err := store.ListSlides(video.ID)
	if err != nil {
		t.Fatalf("查询幻灯片失败: %v", err)
	}
	got, _ := registry.Get(snap.ID)
	return slides, got
}

func TestProcessFramesDeferredBoundaryKeepsSingleSlide(t *testing.T) {
	// 0.5s 处的红→蓝边界低于 2.0s 最短时长：并入下一段，不产生新幻灯片
	slides, snap := runShortClip(t, 2.0)
	if len(slides) > 1 {
		t.Fatalf("被并入的短片段不应产生幻灯片，得到 %d 张", len(slides))
	}
	if len(slides) != 1 || slides[0].FrameNumber != 0 {
		t.Fatalf("应只保留第 0 帧的初始幻灯片: %+v", slides)
	}
	if snap.Status != jobs.StatusCompleted {
		t.Fatalf("任务应正常完成，得到 %s", snap.Status)
	}
}

func TestProcessFramesShortBoundaryCapturedWhenUnrestricted(t *testing.T) {
	// 最短时长为 0：同一短片在边界处照常捕获第二张幻灯片
	slides, snap := runShortClip(t, 0)
	if len(slides) != 2 {
		t.Fatalf("应捕获初始幻灯片与边界幻灯片共 2 张，得到 %d", len(slides))
	}
	if slides[1].FrameNumber != 5 {
		t.Fatalf("边界幻灯片应落在第 5 帧，得到 %d", slides[1].FrameNumber)
	}

	// 帧循环按间隔刷新预览，最后一次落在第 9 帧
	if snap.PreviewFrame == nil || *snap.PreviewFrame != 9 {
		t.Fatalf("预览应随帧循环周期性刷新: %+v", snap.PreviewFrame)
	}
}

func TestResolveSettingsDefaults(t *testing.T) {
	p := &ProcessorService{cfg: testProcessorConfig()}

	got := p.resolve(nil)
	if got.thresholdSSIM != 0.9 || got.thresholdHist != 0.9 {
		t.Fatalf("未覆盖时应沿用全局阈值: %+v", got)
	}
	if got.frameGap != 10 || got.transitionLimit != 3 {
		t.Fatalf("未覆盖时应沿用全局去抖参数: %+v", got)
	}
	if got.whisperModel != "base" {
		t.Fatalf("未覆盖时应沿用全局模型规格: %s", got.whisperModel)
	}
}

func TestResolveSettingsOverrides(t *testing.T) {
	p := &ProcessorService{cfg: testProcessorConfig()}

	ssim := 0.8
	gap := 5
	model := "small"
	minAudio := 2.5
	scale := 50.0

	got := p.resolve(&ProcessSettings{
		ThresholdSSIM:        &ssim,
		FrameGap:             &gap,
		WhisperModel:         &model,
		MinSlideAudioSeconds: &minAudio,
		ScalePercent:         &scale,
	})

	if got.thresholdSSIM != 0.8 {
		t.Fatalf("结构阈值覆盖未生效: %v", got.thresholdSSIM)
	}
	if got.frameGap != 5 {
		t.Fatalf("去抖窗口覆盖未生效: %v", got.frameGap)
	}
	if got.whisperModel != "small" {
		t.Fatalf("模型规格覆盖未生效: %s", got.whisperModel)
	}
	if got.minSlideAudioSeconds != 2.5 {
		t.Fatalf("最短片段覆盖未生效: %v", got.minSlideAudioSeconds)
	}
	if got.scalePercent != 50 {
		t.Fatalf("处理分辨率覆盖未生效: %v", got.scalePercent)
	}

	// 未覆盖的字段保持全局值
	if got.thresholdHist != 0.9 || got.targetPercent != 100 || got.transitionLimit != 3 {
		t.Fatalf("未覆盖字段被改动: %+v", got)
	}
}
