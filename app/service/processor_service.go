package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"vid2doc/app/audio"
	"vid2doc/app/config"
	"vid2doc/app/detector"
	"vid2doc/app/jobs"
	"vid2doc/app/logger"
	"vid2doc/app/media"
	"vid2doc/app/model"
	"vid2doc/app/summarize"
	"vid2doc/app/transcribe"
	"vid2doc/app/utils/cmdexec"
	"vid2doc/app/utils/preview"
)

// ProcessSettings 单次任务的检测参数覆盖，nil 字段沿用全局配置
type ProcessSettings struct {
	ThresholdSSIM           *float64 `json:"threshold_ssim"`
	ThresholdHist           *float64 `json:"threshold_hist"`
	FrameGap                *int     `json:"frame_gap"`
	TransitionLimit         *int     `json:"transition_limit"`
	ScalePercent            *float64 `json:"scale_percent"`
	TargetResolutionPercent *float64 `json:"target_resolution_percent"`
	WhisperModel            *string  `json:"whisper_model"`
	MinSlideAudioSeconds    *float64 `json:"min_slide_audio_seconds"`
}

// resolved 合并覆盖后的生效参数
type resolvedSettings struct {
	thresholdSSIM        float64
	thresholdHist        float64
	frameGap             int
	transitionLimit      int
	scalePercent         float64
	targetPercent        float64
	whisperModel         string
	minSlideAudioSeconds float64
}

// ProcessorService 视频处理管线的编排者。每个任务一个工作协程：
// 探测属性、逐帧检测边界、捕获幻灯片、切音频、转写、摘要、落库，
// 全程通过事件把进度合并进任务注册表。
type ProcessorService struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *jobs.Registry
	store    *StoreService

	runner      cmdexec.Runner
	extractor   *audio.Extractor
	transcriber *transcribe.Transcriber
	summarizer  *summarize.Summarizer
}

// NewProcessorService 创建处理服务并装配管线各阶段
func NewProcessorService(cfg *config.Config, log *logger.Logger,
	registry *jobs.Registry, store *StoreService) *ProcessorService {

	runner := cmdexec.New()
	extractor := audio.NewExtractor(runner, store, log,
		cfg.Audio.FFmpegPath, cfg.Audio.FFprobePath,
		cfg.Storage.FailLogDir, cfg.Audio.RetryAttempts)
	models := transcribe.NewModelCache(cfg.Storage.ModelDir, log)
	transcriber := transcribe.NewTranscriber(runner, models, store, log,
		cfg.Whisper.BinaryPath, cfg.Whisper.Language, cfg.Whisper.Threads)
	summarizer := summarize.New(log, cfg.Summary.MinLength, cfg.Summary.MaxLength,
		func(ctx context.Context) (summarize.Backend, error) {
			return summarize.NewGeminiBackend(ctx, cfg.Summary.APIKey, cfg.Summary.Model)
		})

	return &ProcessorService{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		store:       store,
		runner:      runner,
		extractor:   extractor,
		transcriber: transcriber,
		summarizer:  summarizer,
	}
}

// Submit 登记任务并启动工作协程，返回任务快照
func (p *ProcessorService) Submit(videoPath string, settings *ProcessSettings) jobs.Snapshot {
	snapshot := p.registry.Create(videoPath)
	go p.run(snapshot.ID, videoPath, p.resolve(settings))
	return snapshot
}

// SubmitPath 以默认参数提交，供收件目录监控调用
func (p *ProcessorService) SubmitPath(videoPath string) string {
	return p.Submit(videoPath, nil).ID
}

// resolve 合并任务级覆盖与全局配置
func (p *ProcessorService) resolve(s *ProcessSettings) resolvedSettings {
	r := resolvedSettings{
		thresholdSSIM:        p.cfg.Detect.ThresholdSSIM,
		thresholdHist:        p.cfg.Detect.ThresholdHist,
		frameGap:             p.cfg.Detect.FrameGap,
		transitionLimit:      p.cfg.Detect.TransitionLimit,
		scalePercent:         p.cfg.Detect.ScalePercent,
		targetPercent:        p.cfg.Detect.TargetResolutionPercent,
		whisperModel:         p.cfg.Whisper.Model,
		minSlideAudioSeconds: p.cfg.Audio.MinSlideAudioSeconds,
	}
	if s == nil {
		return r
	}
	if s.ThresholdSSIM != nil {
		r.thresholdSSIM = *s.ThresholdSSIM
	}
	if s.ThresholdHist != nil {
		r.thresholdHist = *s.ThresholdHist
	}
	if s.FrameGap != nil {
		r.frameGap = *s.FrameGap
	}
	if s.TransitionLimit != nil {
		r.transitionLimit = *s.TransitionLimit
	}
	if s.ScalePercent != nil {
		r.scalePercent = *s.ScalePercent
	}
	if s.TargetResolutionPercent != nil {
		r.targetPercent = *s.TargetResolutionPercent
	}
	if s.WhisperModel != nil {
		r.whisperModel = *s.WhisperModel
	}
	if s.MinSlideAudioSeconds != nil {
		r.minSlideAudioSeconds = *s.MinSlideAudioSeconds
	}
	return r
}

// run 任务工作协程主体
func (p *ProcessorService) run(jobID, videoPath string, settings resolvedSettings) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("任务 %s 处理协程崩溃: %v", jobID, r)
			p.registry.Apply(jobID, jobs.Event{Type: jobs.EventError,
				Message: fmt.Sprintf("内部错误: %v", r)})
		}
	}()

	ctx := context.Background()
	p.registry.MarkStarting(jobID)

	props, err := media.Probe(ctx, p.runner, p.cfg.Audio.FFprobePath, videoPath)
	if err != nil {
		p.fail(jobID, fmt.Sprintf("读取视频属性失败: %v", err))
		return
	}

	video := &model.Video{
		Filename:     filepath.Base(videoPath),
		OriginalPath: videoPath,
		Duration:     props.Duration,
		FPS:          props.FPS,
		TotalFrames:  props.TotalFrames,
		Width:        props.Width,
		Height:       props.Height,
		FileSize:     props.FileSize,
	}
	if err := p.store.CreateVideo(video); err != nil {
		p.fail(jobID, fmt.Sprintf("登记视频失败: %v", err))
		return
	}

	p.registry.Apply(jobID, jobs.Event{
		Type:        jobs.EventStarted,
		TotalFrames: props.TotalFrames,
		FPS:         props.FPS,
		VideoID:     &video.ID,
	})

	// 加速器诊断一次性采集，失败静默
	if diag := p.collectGPUDiagnostics(ctx); diag != nil {
		p.registry.Apply(jobID, jobs.Event{Type: jobs.EventGPU, Diagnostics: diag})
	}

	if err := p.processFrames(ctx, jobID, video, props, settings); err != nil {
		p.fail(jobID, err.Error())
		return
	}
}

// processFrames 逐帧检测与捕获主循环
func (p *ProcessorService) processFrames(ctx context.Context, jobID string,
	video *model.Video, props *media.Properties, settings resolvedSettings) error {

	reader, err := media.OpenFrameReader(ctx, p.cfg.Audio.FFmpegPath, props)
	if err != nil {
		return fmt.Errorf("打开视频解码失败: %v", err)
	}
	defer reader.Close()

	capture := detector.NewCapture(settings.scalePercent, settings.targetPercent, p.cfg.Storage.OutputDir)
	comparator := detector.NewComparator(p.cfg.Detect.HistogramBins)
	machine := detector.NewStateMachine(settings.thresholdSSIM, settings.thresholdHist,
		settings.frameGap, settings.transitionLimit)

	interval := p.cfg.Job.ProgressInterval
	if interval <= 0 {
		interval = 50
	}
	previewEvery := p.cfg.Job.PreviewInterval
	if previewEvery <= 0 {
		previewEvery = 120
	}

	var prevGray *image.Gray
	var lastSlide *model.Slide // 最近捕获的幻灯片，等待下一边界到来时补音频
	segStart := 0              // 当前音频片段起点，短片段并入下一段时不前移
	orderIndex := 0

	for frameIdx := 0; ; frameIdx++ {
		if p.registry.ShouldCancel(jobID) {
			p.registry.Apply(jobID, jobs.Event{Type: jobs.EventCancelled})
			return nil
		}

		native, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("解码第 %d 帧失败: %v", frameIdx, err)
		}

		gray := media.Grayscale(capture.ProcessingFrame(native))

		// 第 0 帧始终作为隐式初始幻灯片
		if frameIdx == 0 {
			slide, err := p.captureSlide(jobID, capture, native, video, 0, 0, &orderIndex)
			if err != nil {
				return err
			}
			lastSlide = slide
			prevGray = gray
			continue
		}

		ssim, hist := comparator.Compare(prevGray, gray)
		prevGray = gray

		if boundary, ok := machine.Observe(frameIdx, ssim, hist, props.FPS); ok {
			// 先为上一张幻灯片结算 [segStart, 边界) 的音频；
			// 片段并入下一段时该边界不捕获新幻灯片
			newStart, settled := p.settleSegment(ctx, jobID, video, lastSlide, segStart,
				boundary.EndFrame, props.FPS, settings)
			segStart = newStart
			if settled {
				slide, err := p.captureSlide(jobID, capture, native, video,
					boundary.EndFrame, boundary.Timestamp, &orderIndex)
				if err != nil {
					return err
				}
				lastSlide = slide
			}
		}

		if frameIdx%interval == 0 {
			frames := frameIdx
			p.registry.Apply(jobID, jobs.Event{Type: jobs.EventProgress, FramesProcessed: &frames})
		}

		if frameIdx%previewEvery == 0 {
			p.emitPreview(jobID, native, frameIdx, float64(frameIdx)/props.FPS)
		}
	}

	// 尾段音频归属最后一张幻灯片，不再产生新幻灯片；
	// 低于最短时长的尾段直接丢弃
	if lastSlide != nil && props.TotalFrames > segStart {
		segLen := float64(props.TotalFrames-segStart) / props.FPS
		if segLen >= settings.minSlideAudioSeconds {
			p.processSegment(ctx, jobID, video, lastSlide, segStart, props.TotalFrames, props.FPS, settings)
		}
	}

	p.cleanupWavNamespace(video.ID)

	p.registry.Apply(jobID, jobs.Event{Type: jobs.EventComplete, VideoID: &video.ID})
	return nil
}

// settleSegment 在边界确认时结算上一段音频。片段低于最短时长时
// 并入下一段：不处理也不前移起点，调用方据此跳过该边界的幻灯片捕获。
// 返回新的片段起点与本段是否已结算。
func (p *ProcessorService) settleSegment(ctx context.Context, jobID string, video *model.Video,
	slide *model.Slide, segStart, boundaryFrame int, fps float64, settings resolvedSettings) (int, bool) {

	segLen := float64(boundaryFrame-segStart) / fps
	if segLen < settings.minSlideAudioSeconds {
		start := segStart
		p.registry.Apply(jobID, jobs.Event{
			Type:         jobs.EventStatus,
			Message:      fmt.Sprintf("音频片段过短 (%.2fs)，并入下一段", segLen),
			SegmentStart: &start,
		})
		return segStart, false
	}

	p.processSegment(ctx, jobID, video, slide, segStart, boundaryFrame, fps, settings)
	return boundaryFrame, true
}

// captureSlide 保存幻灯片图片、落库并上报事件，同时刷新预览缩略图
func (p *ProcessorService) captureSlide(jobID string, capture *detector.Capture,
	native image.Image, video *model.Video, frameIdx int, timestamp float64,
	orderIndex *int) (*model.Slide, error) {

	imagePath, err := capture.SaveSlide(native, video.ID, frameIdx)
	if err != nil {
		return nil, fmt.Errorf("保存幻灯片失败: %v", err)
	}

	slide := &model.Slide{
		VideoID:     video.ID,
		FrameNumber: frameIdx,
		Timestamp:   timestamp,
		ImagePath:   imagePath,
		OrderIndex:  *orderIndex,
	}
	if err := p.store.CreateSlide(slide); err != nil {
		return nil, fmt.Errorf("登记幻灯片失败: %v", err)
	}
	*orderIndex++

	frame := frameIdx
	ts := timestamp
	p.registry.Apply(jobID, jobs.Event{Type: jobs.EventSlide, Frame: &frame, Timestamp: &ts})

	p.emitPreview(jobID, native, frameIdx, timestamp)
	return slide, nil
}

// emitPreview 刷新预览缩略图并上报事件，失败不影响处理
func (p *ProcessorService) emitPreview(jobID string, native image.Image, frameIdx int, timestamp float64) {
	path, err := preview.Render(native, p.cfg.Storage.OutputDir, jobID, frameIdx, timestamp)
	if err != nil {
		p.log.Warnf("生成预览图失败: %v", err)
		return
	}

	frame := frameIdx
	ts := timestamp
	p.registry.Apply(jobID, jobs.Event{
		Type: jobs.EventPreview, ImagePath: path, Frame: &frame, Timestamp: &ts,
	})
}

// processSegment 提取、转写并摘要一段音频，文本归属指定幻灯片。
// 音频链路的一切失败都降级为空文本，任务照常推进。
func (p *ProcessorService) processSegment(ctx context.Context, jobID string, video *model.Video,
	slide *model.Slide, startFrame, endFrame int, fps float64, settings resolvedSettings) {

	start := startFrame
	p.registry.Apply(jobID, jobs.Event{
		Type:         jobs.EventStatus,
		Message:      fmt.Sprintf("提取音频片段 %d→%d", startFrame, endFrame),
		SegmentStart: &start,
	})

	text := ""
	wavPath, err := audio.SegmentWavPath(p.cfg.Storage.WavDir, video.ID, video.OriginalPath, startFrame, endFrame)
	if err != nil {
		p.log.Errorf("计算 wav 路径失败: %v", err)
	} else if err := p.extractor.ExtractSegment(ctx, video.OriginalPath, &video.ID,
		startFrame, endFrame, fps, wavPath); err != nil {
		// 两路提取均失败，失败记录已由提取器写入
		p.registry.Apply(jobID, jobs.Event{
			Type:    jobs.EventStatus,
			Message: fmt.Sprintf("音频片段 %d→%d 提取失败，跳过转写", startFrame, endFrame),
		})
	} else {
		text = p.transcriber.Transcribe(ctx, wavPath, &video.ID,
			startFrame, endFrame, settings.whisperModel, p.cfg.Audio.RetryAttempts)
	}

	suggested := text
	if text != "" {
		suggested = p.summarizer.Summarize(ctx, text)
	}

	extract := &model.TextExtract{
		SlideID:       slide.ID,
		OriginalText:  text,
		SuggestedText: suggested,
	}
	if err := p.store.CreateTextExtract(extract); err != nil {
		p.log.Errorf("登记文本记录失败: %v", err)
	}

	frame := slide.FrameNumber
	p.registry.Apply(jobID, jobs.Event{
		Type:          jobs.EventTextSample,
		Sample:        strings.TrimSpace(text),
		SourceFrame:   &frame,
		SourceSlideID: &slide.ID,
	})
}

// collectGPUDiagnostics 采集一次加速器状态，不可用时返回 nil
func (p *ProcessorService) collectGPUDiagnostics(ctx context.Context) map[string]string {
	res, err := p.runner.Run(ctx, "nvidia-smi",
		"--query-gpu=name,driver_version,memory.total,memory.used,utilization.gpu",
		"--format=csv,noheader")
	if err != nil {
		return nil
	}

	line := strings.TrimSpace(strings.SplitN(res.Stdout, "\n", 2)[0])
	fields := strings.Split(line, ",")
	if len(fields) < 5 {
		return nil
	}
	return map[string]string{
		"name":           strings.TrimSpace(fields[0]),
		"driver_version": strings.TrimSpace(fields[1]),
		"memory_total":   strings.TrimSpace(fields[2]),
		"memory_used":    strings.TrimSpace(fields[3]),
		"utilization":    strings.TrimSpace(fields[4]),
	}
}

// cleanupWavNamespace 控制该视频 wav 工作区的文件数量
func (p *ProcessorService) cleanupWavNamespace(videoID uint) {
	dir := filepath.Join(p.cfg.Storage.WavDir, fmt.Sprintf("%d", videoID))
	if err := audio.CleanupWavDir(dir, p.cfg.Audio.MaxWavFiles); err != nil {
		p.log.Warnf("清理 wav 工作区失败: %v", err)
	}
}

// fail 统一的终态错误上报
func (p *ProcessorService) fail(jobID, message string) {
	p.log.Errorf("任务 %s 失败: %s", jobID, message)
	p.registry.Apply(jobID, jobs.Event{Type: jobs.EventError, Message: message})
}
