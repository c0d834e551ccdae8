package service

import (
	"fmt"
	"vid2doc/app/logger"
	"vid2doc/app/model"

	"gorm.io/gorm"
)

// StoreService 处理结果的持久化层。幻灯片与文本只增不改，
// 编辑层的修改走 FinalText 字段，不触碰核心写入的内容。
type StoreService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewStoreService 创建持久化服务
func NewStoreService(db *gorm.DB, log *logger.Logger) *StoreService {
	return &StoreService{db: db, log: log}
}

// CreateVideo 登记视频元数据
func (s *StoreService) CreateVideo(video *model.Video) error {
	if err := s.db.Create(video).Error; err != nil {
		return fmt.Errorf("创建视频记录失败: %w", err)
	}
	return nil
}

// CreateSlide 登记一张确认的幻灯片
func (s *StoreService) CreateSlide(slide *model.Slide) error {
	if err := s.db.Create(slide).Error; err != nil {
		return fmt.Errorf("创建幻灯片记录失败: %w", err)
	}
	return nil
}

// CreateTextExtract 登记幻灯片的转写与摘要文本
func (s *StoreService) CreateTextExtract(extract *model.TextExtract) error {
	if err := s.db.Create(extract).Error; err != nil {
		return fmt.Errorf("创建文本记录失败: %w", err)
	}
	return nil
}

// RecordAudioFailure 追加一条音频处理失败记录。
// 持久化自身失败只记日志，绝不向处理管线传播。
func (s *StoreService) RecordAudioFailure(videoID, slideID *uint, startFrame, endFrame, attempts int,
	tool, message, stderr, details string) {

	failure := &model.AudioFailure{
		VideoID:      videoID,
		SlideID:      slideID,
		StartFrame:   startFrame,
		EndFrame:     endFrame,
		Attempts:     attempts,
		Tool:         tool,
		ErrorMessage: message,
		Stderr:       stderr,
		Details:      details,
	}
	if err := s.db.Create(failure).Error; err != nil {
		s.log.Errorf("写入音频失败记录失败: %v", err)
	}
}

// PersistSample 尽力持久化一条转写样本，写入对应视频最新的
// 幻灯片文本。找不到归属幻灯片时静默放弃。
func (s *StoreService) PersistSample(videoID uint, sourceFrame int, text string) error {
	var slide model.Slide
	err := s.db.Where("video_id = ? AND frame_number <= ?", videoID, sourceFrame).
		Order("frame_number DESC").
		First(&slide).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}

	return s.db.Model(&model.TextExtract{}).
		Where("slide_id = ?", slide.ID).
		Update("original_text", text).Error
}

// GetVideo 按 ID 读取视频
func (s *StoreService) GetVideo(id uint) (*model.Video, error) {
	var video model.Video
	if err := s.db.First(&video, id).Error; err != nil {
		return nil, err
	}
	return &video, nil
}

// ListVideos 按创建时间倒序列出视频
func (s *StoreService) ListVideos() ([]model.Video, error) {
	var videos []model.Video
	if err := s.db.Order("created_at DESC").Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// ListSlides 列出视频的幻灯片及文本，按出现顺序
func (s *StoreService) ListSlides(videoID uint) ([]model.Slide, error) {
	var slides []model.Slide
	if err := s.db.Where("video_id = ?", videoID).
		Order("frame_number ASC").
		Find(&slides).Error; err != nil {
		return nil, err
	}
	return slides, nil
}

// ListTextExtracts 列出幻灯片的文本记录
func (s *StoreService) ListTextExtracts(slideID uint) ([]model.TextExtract, error) {
	var extracts []model.TextExtract
	if err := s.db.Where("slide_id = ?", slideID).Find(&extracts).Error; err != nil {
		return nil, err
	}
	return extracts, nil
}

// UpdateFinalText 编辑层修改最终文本
func (s *StoreService) UpdateFinalText(extractID uint, text string) error {
	return s.db.Model(&model.TextExtract{}).
		Where("id = ?", extractID).
		Update("final_text", text).Error
}

// ListAudioFailures 列出音频失败记录，可按视频过滤
func (s *StoreService) ListAudioFailures(videoID *uint) ([]model.AudioFailure, error) {
	query := s.db.Order("created_at DESC")
	if videoID != nil {
		query = query.Where("video_id = ?", *videoID)
	}
	var failures []model.AudioFailure
	if err := query.Find(&failures).Error; err != nil {
		return nil, err
	}
	return failures, nil
}
