package detector

// Boundary 确认的幻灯片边界
type Boundary struct {
	StartFrame int     // 上一个确认帧
	EndFrame   int     // 当前确认帧
	Timestamp  float64 // EndFrame / fps，秒
}

// StateMachine 幻灯片切换去抖状态机。
// 单帧阈值判断对光标移动、编码噪点过于敏感；要求分歧在
// frame_gap 帧的窗口上持续 transition_limit 次才确认边界，
// 检测延迟上界为 frame_gap × transition_limit 帧。
type StateMachine struct {
	thresholdSSIM   float64
	thresholdHist   float64
	frameGap        int
	transitionLimit int

	pending            bool
	transitionCounter  int
	lastConfirmedFrame int
}

// NewStateMachine 创建状态机，lastConfirmedFrame 从 0 起
// （第 0 帧始终作为隐式初始幻灯片，由调用方捕获）
func NewStateMachine(thresholdSSIM, thresholdHist float64, frameGap, transitionLimit int) *StateMachine {
	return &StateMachine{
		thresholdSSIM:     thresholdSSIM,
		thresholdHist:     thresholdHist,
		frameGap:          frameGap,
		transitionLimit:   transitionLimit,
		transitionCounter: 1,
	}
}

// Observe 输入一帧的比较分数，若本帧确认边界则返回边界信息。
// 判定使用严格小于：分数恰好等于阈值视为无变化。
func (m *StateMachine) Observe(frameIdx int, ssim, hist, fps float64) (Boundary, bool) {
	if ssim < m.thresholdSSIM || hist < m.thresholdHist {
		m.pending = true
	}

	if m.pending && (frameIdx-m.lastConfirmedFrame) > m.frameGap {
		m.transitionCounter++
		if m.transitionCounter > m.transitionLimit {
			boundary := Boundary{
				StartFrame: m.lastConfirmedFrame,
				EndFrame:   frameIdx,
				Timestamp:  float64(frameIdx) / fps,
			}
			m.pending = false
			m.transitionCounter = 1
			m.lastConfirmedFrame = frameIdx
			return boundary, true
		}
	}
	return Boundary{}, false
}

// LastConfirmedFrame 返回最近一次确认的帧号
func (m *StateMachine) LastConfirmedFrame() int {
	return m.lastConfirmedFrame
}
