package transcribe

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"vid2doc/app/audio"
	"vid2doc/app/logger"
	"vid2doc/app/utils/cmdexec"
)

// whisper 错误入库前的截断上限
const whisperStderrLimit = 4000

// Transcriber 语音转写器，外部调用 whisper.cpp 命令行。
// 依赖缺失或转写异常一律记录失败并返回空串，不中断任务；
// 无错误但无语音的空转写只计入诊断计数，不算失败。
type Transcriber struct {
	runner     cmdexec.Runner
	models     *ModelCache
	recorder   audio.FailureRecorder
	log        *logger.Logger
	binaryPath string
	language   string
	threads    int
	lookPath   func(string) error // 测试中替换
	emptyCount atomic.Int64
}

// NewTranscriber 创建转写器
func NewTranscriber(runner cmdexec.Runner, models *ModelCache, recorder audio.FailureRecorder,
	log *logger.Logger, binaryPath, language string, threads int) *Transcriber {
	if threads <= 0 {
		threads = 4
	}
	return &Transcriber{
		runner:     runner,
		models:     models,
		recorder:   recorder,
		log:        log,
		binaryPath: binaryPath,
		language:   language,
		threads:    threads,
		lookPath:   cmdexec.LookPath,
	}
}

// Transcribe 转写一个音频片段，任何失败都降级为空串
func (t *Transcriber) Transcribe(ctx context.Context, wavPath string, videoID *uint,
	startFrame, endFrame int, modelSize string, attempts int) string {

	// 依赖缺失在首次使用时发现并记录
	if err := t.lookPath(t.binaryPath); err != nil {
		t.log.Errorf("whisper 不可用: %v", err)
		t.recorder.RecordAudioFailure(videoID, nil, startFrame, endFrame, 0,
			"whisper", "whisper 未安装或不在 PATH 中", truncateWhisperErr(err.Error()), "")
		return ""
	}

	modelPath, err := t.models.Ensure(ctx, modelSize)
	if err != nil {
		t.log.Errorf("模型加载失败: %v", err)
		t.recorder.RecordAudioFailure(videoID, nil, startFrame, endFrame, 0,
			"whisper", fmt.Sprintf("模型 '%s' 加载失败", modelSize), truncateWhisperErr(err.Error()), "")
		return ""
	}

	res, err := t.runner.Run(ctx, t.binaryPath,
		"-m", modelPath,
		"-f", wavPath,
		"-l", t.language,
		"-t", strconv.Itoa(t.threads),
		"-nt", // 不输出时间戳
		"-np", // 不输出进度
	)
	if err != nil {
		t.log.Errorf("whisper 转写失败 %d→%d: %v", startFrame, endFrame, err)
		t.recorder.RecordAudioFailure(videoID, nil, startFrame, endFrame, attempts,
			"whisper", "whisper 转写异常（详见 stderr）", truncateWhisperErr(res.Stderr), "")
		return ""
	}

	text := strings.TrimSpace(res.Stdout)
	if text == "" {
		// 有效但为空：仅诊断计数，不记失败
		t.emptyCount.Add(1)
		t.log.Warnf("whisper 转写结果为空: %s (帧 %d→%d)", wavPath, startFrame, endFrame)
		return ""
	}

	t.log.Infof("转写完成 %d→%d: %s", startFrame, endFrame, preview(text, 240))
	return text
}

// EmptyCount 返回空转写的诊断计数
func (t *Transcriber) EmptyCount() int64 {
	return t.emptyCount.Load()
}

func truncateWhisperErr(s string) string {
	if len(s) > whisperStderrLimit {
		return s[:whisperStderrLimit] + "..."
	}
	return s
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
