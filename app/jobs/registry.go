package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"
	"vid2doc/app/config"
	"vid2doc/app/logger"

	"github.com/google/uuid"
)

// 进入日志环形缓冲的单条消息上限
const logMessageLimit = 4000

// SamplePersister 转写样本的尽力持久化协作者。
// 持久化失败只影响计数，不影响任务状态。
type SamplePersister interface {
	PersistSample(videoID uint, sourceFrame int, text string) error
}

// Registry 进程内任务注册表。一把互斥锁保护全部任务记录，
// 工作协程通过 Apply 投递事件，接口层只读快照。
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*job

	log     *logger.Logger
	persist SamplePersister

	throttle      time.Duration
	minDelta      float64
	maxLogEntries int
	maxExtracts   int

	now func() time.Time // 测试中替换
}

// NewRegistry 创建任务注册表
func NewRegistry(cfg config.JobConfig, log *logger.Logger, persist SamplePersister) *Registry {
	throttle := time.Duration(cfg.ProgressThrottleSeconds * float64(time.Second))
	if throttle <= 0 {
		throttle = 500 * time.Millisecond
	}
	maxLogs := cfg.MaxLogEntries
	if maxLogs <= 0 {
		maxLogs = 200
	}
	maxExtracts := cfg.MaxExtracts
	if maxExtracts <= 0 {
		maxExtracts = 25
	}
	minDelta := cfg.ProgressMinDelta
	if minDelta <= 0 {
		minDelta = 1.0
	}

	return &Registry{
		jobs:          make(map[string]*job),
		log:           log,
		persist:       persist,
		throttle:      throttle,
		minDelta:      minDelta,
		maxLogEntries: maxLogs,
		maxExtracts:   maxExtracts,
		now:           time.Now,
	}
}

// Create 登记一个新任务并返回其初始快照
func (r *Registry) Create(videoPath string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	j := &job{
		ID:        uuid.NewString(),
		VideoPath: videoPath,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[j.ID] = j
	r.appendLog(j, "任务已创建，等待处理。")
	return j.snapshot()
}

// Get 按 ID 读取任务快照
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return j.snapshot(), true
}

// List 返回全部任务快照，按创建时间倒序
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.snapshot())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// RequestCancel 置位取消标记。取消是协作式的：工作协程在帧间
// 轮询 ShouldCancel 并自行收尾。终态任务的取消请求被拒绝。
func (r *Registry) RequestCancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("任务不存在: %s", id)
	}
	if j.Status.Terminal() {
		return fmt.Errorf("任务已结束，无法取消: %s", id)
	}
	if !j.CancelRequested {
		j.CancelRequested = true
		j.UpdatedAt = r.now()
		r.appendLog(j, "已收到停止请求，等待处理循环确认。")
	}
	return nil
}

// ShouldCancel 供工作协程轮询取消标记
func (r *Registry) ShouldCancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	return ok && j.CancelRequested
}

// MarkStarting 任务从队列取出、属性探测前的状态切换
func (r *Registry) MarkStarting(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j, ok := r.jobs[id]; ok && j.Status == StatusQueued {
		j.Status = StatusStarting
		j.UpdatedAt = r.now()
	}
}

// Apply 将一个工作协程事件合并进任务记录
func (r *Registry) Apply(id string, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		r.log.Warnf("丢弃未知任务的事件: %s (%s)", id, e.Type)
		return
	}
	// 终态后到达的迟到事件一律丢弃
	if j.Status.Terminal() {
		return
	}
	j.UpdatedAt = r.now()

	switch e.Type {
	case EventStarted:
		j.Status = StatusRunning
		j.TotalFrames = e.TotalFrames
		j.FPS = e.FPS
		j.VideoID = e.VideoID
		r.setPercentLocked(j, 0.5, true)
		r.appendLog(j, fmt.Sprintf("视频属性加载完成：共 %d 帧，%.2f fps，开始处理。", e.TotalFrames, e.FPS))

	case EventProgress:
		if e.FramesProcessed != nil {
			j.FramesProcessed = *e.FramesProcessed
		}
		percent := r.eventPercent(j, e)
		r.setPercentLocked(j, percent, false)
		r.appendLogThrottled(j, fmt.Sprintf("已处理 %d/%d 帧 (%.1f%%)", j.FramesProcessed, j.TotalFrames, j.Percent))

	case EventSlide:
		msg := "捕获新幻灯片"
		if e.Frame != nil {
			msg = fmt.Sprintf("在第 %d 帧捕获新幻灯片", *e.Frame)
		}
		r.appendLog(j, msg)
		if e.Extract != "" {
			r.addExtract(j, Extract{Frame: e.Frame, Timestamp: e.Timestamp, Text: e.Extract})
		}

	case EventPreview:
		j.PreviewPath = e.ImagePath
		j.PreviewFrame = e.Frame
		j.PreviewTimestamp = e.Timestamp
		j.PreviewUpdatedAt = r.now()

	case EventStatus:
		if e.FramesProcessed != nil {
			j.FramesProcessed = *e.FramesProcessed
		}
		if e.Percent != nil {
			r.setPercentLocked(j, *e.Percent, false)
		}
		msg := e.Message
		if e.SegmentStart != nil {
			msg = fmt.Sprintf("%s（片段起点帧 %d）", msg, *e.SegmentStart)
		}
		if msg != "" {
			r.appendLogThrottled(j, msg)
		}
		if e.ToolStderr != "" {
			r.appendLog(j, "外部工具输出: "+truncateLog(e.ToolStderr))
		}

	case EventGPU:
		// 结构化诊断只存储，绝不进文本日志
		j.GPUDiagnostics = e.Diagnostics

	case EventTextSample:
		j.SampleCount++
		sample := e.Sample
		if sample == "" {
			j.EmptySamples++
			break
		}
		r.addExtract(j, Extract{Frame: e.SourceFrame, Timestamp: e.Timestamp, Text: sample})
		r.appendLogThrottled(j, "转写样本: "+truncateLog(sample))
		if r.persist != nil && j.VideoID != nil && e.SourceFrame != nil {
			if err := r.persist.PersistSample(*j.VideoID, *e.SourceFrame, sample); err != nil {
				r.log.Warnf("转写样本持久化失败: %v", err)
			} else {
				j.SamplesPersisted++
			}
		}

	case EventError:
		j.Status = StatusError
		j.Error = e.Message
		r.appendLog(j, "处理失败: "+e.Message)

	case EventCancelled:
		// 百分比冻结在取消时的值
		j.Status = StatusCancelled
		r.appendLog(j, "处理已按用户请求停止。")

	case EventComplete:
		j.Status = StatusCompleted
		j.VideoID = e.VideoID
		j.FramesProcessed = j.TotalFrames
		r.setPercentLocked(j, 100, true)
		r.appendLog(j, "处理完成。")

	default:
		r.log.Warnf("未知的任务事件类型: %s", e.Type)
	}
}

// RemoveOlderThan 移除更新时间早于保留窗口的终态任务，返回移除数量
func (r *Registry) RemoveOlderThan(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-ttl)
	removed := 0
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// eventPercent 取事件携带的百分比，缺省时按帧进度推算
func (r *Registry) eventPercent(j *job, e Event) float64 {
	if e.Percent != nil {
		return *e.Percent
	}
	if j.TotalFrames > 0 {
		return float64(j.FramesProcessed) / float64(j.TotalFrames) * 100
	}
	return j.Percent
}

// setPercentLocked 更新百分比。百分比单调不减，取消后冻结；
// 非强制更新经节流：距上次更新不足最小间隔且增量不足
// 最小增量的更新被丢弃。
func (r *Registry) setPercentLocked(j *job, percent float64, force bool) {
	if j.CancelRequested && !force {
		return
	}
	if percent > 100 {
		percent = 100
	}
	if percent <= j.Percent && !force {
		return
	}

	now := r.now()
	if !force {
		if now.Sub(j.lastPercentAt) < r.throttle && percent-j.Percent < r.minDelta {
			return
		}
	}
	j.Percent = percent
	j.lastPercentAt = now
}

// appendLogThrottled 按日志通道独立的时间节流追加日志
func (r *Registry) appendLogThrottled(j *job, msg string) {
	now := r.now()
	if now.Sub(j.lastLogAt) < r.throttle {
		return
	}
	j.lastLogAt = now
	r.appendLog(j, msg)
}

// appendLog 追加一条日志，超出环形缓冲上限时淘汰最旧的
func (r *Registry) appendLog(j *job, msg string) {
	j.Logs = append(j.Logs, LogEntry{Message: truncateLog(msg), Timestamp: r.now()})
	if len(j.Logs) > r.maxLogEntries {
		j.Logs = j.Logs[len(j.Logs)-r.maxLogEntries:]
	}
}

// addExtract 追加一条文本预览，超出上限时淘汰最旧的
func (r *Registry) addExtract(j *job, ex Extract) {
	j.Extracts = append(j.Extracts, ex)
	if len(j.Extracts) > r.maxExtracts {
		j.Extracts = j.Extracts[len(j.Extracts)-r.maxExtracts:]
	}
}

func truncateLog(s string) string {
	if len(s) > logMessageLimit {
		return s[:logMessageLimit] + "..."
	}
	return s
}
