package audio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"vid2doc/app/config"
	"vid2doc/app/logger"
	"vid2doc/app/utils/cmdexec"
)

// scriptedRunner 按脚本顺序返回预设结果的命令执行器
type scriptedRunner struct {
	results []scriptedResult
	calls   []string
}

type scriptedResult struct {
	res cmdexec.Result
	err error
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) (cmdexec.Result, error) {
	r.calls = append(r.calls, name)
	if len(r.results) == 0 {
		return cmdexec.Result{}, errors.New("脚本外的调用")
	}
	next := r.results[0]
	r.results = r.results[1:]
	return next.res, next.err
}

// recordedFailure 测试收集的失败记录
type recordedFailure struct {
	tool     string
	message  string
	stderr   string
	details  string
	attempts int
}

type fakeRecorder struct {
	records []recordedFailure
}

func (f *fakeRecorder) RecordAudioFailure(videoID, slideID *uint, startFrame, endFrame, attempts int,
	tool, message, stderr, details string) {
	f.records = append(f.records, recordedFailure{
		tool:     tool,
		message:  message,
		stderr:   stderr,
		details:  details,
		attempts: attempts,
	})
}

func newTestExtractor(t *testing.T, runner cmdexec.Runner, recorder FailureRecorder) (*Extractor, *[]time.Duration) {
	t.Helper()
	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	e := NewExtractor(runner, recorder, log, "ffmpeg", "ffprobe", t.TempDir(), 3)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }
	return e, &slept
}

func TestExtractSegmentSucceedsOnRetry(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		{res: cmdexec.Result{Stderr: "boom"}, err: errors.New("exit 1")},
		{res: cmdexec.Result{}, err: nil},
	}}
	recorder := &fakeRecorder{}
	e, slept := newTestExtractor(t, runner, recorder)

	err := e.ExtractSegment(context.Background(), "in.mp4", nil, 0, 300, 30, "out.wav")
	if err != nil {
		t.Fatalf("重试成功不应返回错误: %v", err)
	}
	if len(recorder.records) != 0 {
		t.Fatalf("成功路径不应写失败记录，写了 %d 条", len(recorder.records))
	}

	// 第一次失败后退避 0.6s × 1
	if len(*slept) != 1 || (*slept)[0] != 600*time.Millisecond {
		t.Fatalf("退避序列错误: %v", *slept)
	}
}

func TestExtractSegmentFallbackSucceeds(t *testing.T) {
	runner := &scriptedRunner{results: []scriptedResult{
		// 主路径三次失败
		{res: cmdexec.Result{Stderr: "e1"}, err: errors.New("exit 1")},
		{res: cmdexec.Result{Stderr: "e2"}, err: errors.New("exit 1")},
		{res: cmdexec.Result{Stderr: "e3"}, err: errors.New("exit 1")},
		// ffprobe 探测时长成功
		{res: cmdexec.Result{Stdout: "120.5\n"}, err: nil},
		// 回退解码成功
		{res: cmdexec.Result{}, err: nil},
	}}
	recorder := &fakeRecorder{}
	e, slept := newTestExtractor(t, runner, recorder)

	err := e.ExtractSegment(context.Background(), "in.mp4", nil, 0, 300, 30, "out.wav")
	if err != nil {
		t.Fatalf("回退成功不应返回错误: %v", err)
	}

	// 只有主路径一条失败记录
	if len(recorder.records) != 1 {
		t.Fatalf("期望 1 条失败记录，得到 %d", len(recorder.records))
	}
	if recorder.records[0].tool != "ffmpeg" {
		t.Fatalf("失败记录工具应为 ffmpeg，得到 %s", recorder.records[0].tool)
	}
	if recorder.records[0].attempts != 3 {
		t.Fatalf("失败记录应包含 3 次尝试，得到 %d", recorder.records[0].attempts)
	}

	// 线性退避：0.6s、1.2s
	want := []time.Duration{600 * time.Millisecond, 1200 * time.Millisecond}
	if len(*slept) != 2 || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("退避序列错误: %v", *slept)
	}
}

func TestExtractSegmentBothPathsFail(t *testing.T) {
	longStderr := strings.Repeat("x", 3000)
	runner := &scriptedRunner{results: []scriptedResult{
		{res: cmdexec.Result{Stderr: "e1"}, err: errors.New("exit 1")},
		{res: cmdexec.Result{Stderr: "e2"}, err: errors.New("exit 1")},
		{res: cmdexec.Result{Stderr: longStderr}, err: errors.New("exit 1")},
		// ffprobe 探测失败，回退路径随之失败
		{res: cmdexec.Result{}, err: errors.New("probe failed")},
	}}
	recorder := &fakeRecorder{}
	e, _ := newTestExtractor(t, runner, recorder)

	err := e.ExtractSegment(context.Background(), "in.mp4", nil, 0, 300, 30, "out.wav")
	if err == nil {
		t.Fatalf("两路都失败应返回错误")
	}

	// 每个工具各一条失败记录
	if len(recorder.records) != 2 {
		t.Fatalf("期望 2 条失败记录，得到 %d", len(recorder.records))
	}
	if recorder.records[0].tool != "ffmpeg" || recorder.records[1].tool != "fallback-decoder" {
		t.Fatalf("失败记录工具维度错误: %s / %s", recorder.records[0].tool, recorder.records[1].tool)
	}

	// 入库的 stderr 被截断，完整内容另存日志文件
	if len(recorder.records[0].stderr) >= 3000 {
		t.Fatalf("入库 stderr 应被截断，长度 %d", len(recorder.records[0].stderr))
	}
	if !strings.HasSuffix(recorder.records[0].stderr, "...(truncated)") {
		t.Fatalf("截断的 stderr 应带截断标记")
	}
	if !strings.Contains(recorder.records[0].details, "ffmpeg_log_path") {
		t.Fatalf("失败详情应包含完整日志文件路径: %s", recorder.records[0].details)
	}
}
