package model

import (
	"time"
)

// Slide 幻灯片模型，仅在确认边界时创建，核心流程不做修改
type Slide struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	VideoID     uint      `json:"video_id" gorm:"not null;index"`
	FrameNumber int       `json:"frame_number" gorm:"not null"` // 同一视频内严格递增
	Timestamp   float64   `json:"timestamp" gorm:"not null"`    // frame_number / fps
	ImagePath   string    `json:"image_path" gorm:"not null"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`

	Video *Video `json:"video,omitempty" gorm:"foreignKey:VideoID"`
}

// TableName 指定表名
func (Slide) TableName() string {
	return "slides"
}
