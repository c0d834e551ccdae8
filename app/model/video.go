package model

import (
	"time"
)

// Video 视频模型，读取开始后属性不再变更
type Video struct {
	ID           uint      `json:"id" gorm:"primarykey"`
	Filename     string    `json:"filename" gorm:"not null"`
	OriginalPath string    `json:"original_path"`
	Duration     float64   `json:"duration"` // 秒
	FPS          float64   `json:"fps"`
	TotalFrames  int       `json:"total_frames"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FileSize     int64     `json:"file_size"` // 字节
	CreatedAt    time.Time `json:"created_at"`
}

// TableName 指定表名
func (Video) TableName() string {
	return "videos"
}
