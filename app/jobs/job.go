package jobs

import "time"

// Status 任务状态
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"

	// StatusCancelling 取消请求已受理但工作协程尚未停下时
	// 对外展示的过渡状态，由快照从 running + 取消标记派生
	StatusCancelling Status = "cancelling"
)

// Terminal 判断是否为终态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// LogEntry 日志环形缓冲中的一条
type LogEntry struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Extract 文本预览环形缓冲中的一条
type Extract struct {
	Frame     *int     `json:"frame,omitempty"`
	Timestamp *float64 `json:"timestamp,omitempty"`
	Text      string   `json:"text"`
}

// job 一次处理任务的内存记录。全部字段由 Registry 的互斥锁保护。
type job struct {
	ID        string
	VideoPath string
	Status    Status
	Error     string

	VideoID         *uint
	FPS             float64
	TotalFrames     int
	FramesProcessed int
	Percent         float64

	CancelRequested bool

	GPUDiagnostics map[string]string

	Logs     []LogEntry
	Extracts []Extract

	PreviewPath      string
	PreviewFrame     *int
	PreviewTimestamp *float64
	PreviewUpdatedAt time.Time

	SampleCount      int
	EmptySamples     int
	SamplesPersisted int

	CreatedAt time.Time
	UpdatedAt time.Time

	// 节流时钟：百分比通道与日志通道各自独立
	lastPercentAt time.Time
	lastLogAt     time.Time
}

// Snapshot 任务记录的深拷贝，供接口层无锁读取
type Snapshot struct {
	ID        string `json:"id"`
	VideoPath string `json:"video_path"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`

	VideoID         *uint   `json:"video_id,omitempty"`
	FPS             float64 `json:"fps"`
	TotalFrames     int     `json:"total_frames"`
	FramesProcessed int     `json:"frames_processed"`
	Percent         float64 `json:"percent"`

	CancelRequested bool `json:"cancel_requested"`

	GPUDiagnostics map[string]string `json:"gpu_diagnostics,omitempty"`

	Logs     []LogEntry `json:"logs"`
	Extracts []Extract  `json:"extracts"`

	PreviewPath      string    `json:"preview_path,omitempty"`
	PreviewFrame     *int      `json:"preview_frame,omitempty"`
	PreviewTimestamp *float64  `json:"preview_timestamp,omitempty"`
	PreviewUpdatedAt time.Time `json:"preview_updated_at,omitempty"`

	SampleCount      int `json:"sample_count"`
	EmptySamples     int `json:"empty_samples"`
	SamplesPersisted int `json:"samples_persisted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// snapshot 在持锁状态下深拷贝任务记录
func (j *job) snapshot() Snapshot {
	s := Snapshot{
		ID:               j.ID,
		VideoPath:        j.VideoPath,
		Status:           j.Status,
		Error:            j.Error,
		FPS:              j.FPS,
		TotalFrames:      j.TotalFrames,
		FramesProcessed:  j.FramesProcessed,
		Percent:          j.Percent,
		CancelRequested:  j.CancelRequested,
		PreviewPath:      j.PreviewPath,
		PreviewUpdatedAt: j.PreviewUpdatedAt,
		SampleCount:      j.SampleCount,
		EmptySamples:     j.EmptySamples,
		SamplesPersisted: j.SamplesPersisted,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}

	// 取消受理后、终态前对外展示过渡状态
	if j.Status == StatusRunning && j.CancelRequested {
		s.Status = StatusCancelling
	}

	if j.VideoID != nil {
		v := *j.VideoID
		s.VideoID = &v
	}
	if j.PreviewFrame != nil {
		v := *j.PreviewFrame
		s.PreviewFrame = &v
	}
	if j.PreviewTimestamp != nil {
		v := *j.PreviewTimestamp
		s.PreviewTimestamp = &v
	}
	if len(j.GPUDiagnostics) > 0 {
		s.GPUDiagnostics = make(map[string]string, len(j.GPUDiagnostics))
		for k, v := range j.GPUDiagnostics {
			s.GPUDiagnostics[k] = v
		}
	}

	s.Logs = make([]LogEntry, len(j.Logs))
	copy(s.Logs, j.Logs)
	s.Extracts = make([]Extract, len(j.Extracts))
	copy(s.Extracts, j.Extracts)
	return s
}
