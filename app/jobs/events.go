package jobs

// EventType 任务事件类型
type EventType string

const (
	EventStarted    EventType = "started"     // 视频属性加载完成，处理开始
	EventProgress   EventType = "progress"    // 帧处理进度
	EventSlide      EventType = "slide"       // 确认并捕获了一张幻灯片
	EventPreview    EventType = "preview"     // 预览缩略图更新
	EventStatus     EventType = "status"      // 带可选进度/帧上下文的状态消息
	EventGPU        EventType = "gpu"         // 结构化加速器诊断，只存储不进文本日志
	EventTextSample EventType = "text_sample" // 原始转写样本，驱动实时预览与尽力持久化
	EventError      EventType = "error"       // 终态错误
	EventCancelled  EventType = "cancelled"   // 终态取消
	EventComplete   EventType = "complete"    // 终态完成，百分比强制 100
)

// Event 工作协程上报给任务记录的事件。字段按类型选用，
// 指针字段区分"未携带"与零值。
type Event struct {
	Type EventType

	// started / complete
	TotalFrames int
	FPS         float64
	VideoID     *uint

	// progress / status
	FramesProcessed *int
	Percent         *float64

	// slide / preview / text_sample 上下文
	Frame     *int
	Timestamp *float64
	Extract   string // slide 附带的文本预览
	ImagePath string // preview 缩略图路径

	// status
	Message      string
	SegmentStart *int
	ToolStderr   string // 外部工具原始诊断输出

	// gpu
	Diagnostics map[string]string

	// text_sample
	Sample        string
	SourceFrame   *int
	SourceSlideID *uint
}
