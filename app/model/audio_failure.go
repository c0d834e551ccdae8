package model

import (
	"time"
)

// AudioFailure 音频处理失败记录，按工具维度追加，只增不改
type AudioFailure struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	VideoID      *uint     `json:"video_id" gorm:"index"`
	SlideID      *uint     `json:"slide_id"`
	StartFrame   int       `json:"start_frame"`
	EndFrame     int       `json:"end_frame"`
	Attempts     int       `json:"attempts"`
	Tool         string    `json:"tool" gorm:"size:32;index"` // ffmpeg / fallback-decoder / whisper
	ErrorMessage string    `json:"error_message" gorm:"type:text"`
	Stderr       string    `json:"stderr" gorm:"type:text"`  // 截断后的 stderr
	Details      string    `json:"details" gorm:"type:text"` // JSON，含完整日志文件路径
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (AudioFailure) TableName() string {
	return "audio_failures"
}
