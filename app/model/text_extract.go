package model

import (
	"time"
)

// TextExtract 幻灯片对应的转写与摘要文本
type TextExtract struct {
	ID            uint      `json:"id" gorm:"primarykey"`
	SlideID       uint      `json:"slide_id" gorm:"not null;index"`
	OriginalText  string    `json:"original_text" gorm:"type:text"`  // 原始转写
	SuggestedText string    `json:"suggested_text" gorm:"type:text"` // 摘要或与原文一致
	FinalText     string    `json:"final_text" gorm:"type:text"`     // 编辑层使用，核心不写入
	CreatedAt     time.Time `json:"created_at"`

	Slide *Slide `json:"slide,omitempty" gorm:"foreignKey:SlideID"`
}

// TableName 指定表名
func (TextExtract) TableName() string {
	return "text_extracts"
}
