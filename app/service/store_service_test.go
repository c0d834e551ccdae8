package service

import (
	"testing"
	"vid2doc/app/config"
	"vid2doc/app/logger"
	"vid2doc/app/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"
)

func testStore(t *testing.T) *StoreService {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Video{}, &model.Slide{}, &model.TextExtract{}, &model.AudioFailure{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	log := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stdout"})
	return NewStoreService(db, log)
}

func TestStoreCreateAndQuery(t *testing.T) {
	s := testStore(t)

	video := &model.Video{Filename: "lecture.mp4", FPS: 30, TotalFrames: 900}
	if err := s.CreateVideo(video); err != nil {
		t.Fatalf("创建视频失败: %v", err)
	}
	if video.ID == 0 {
		t.Fatalf("创建后应回填视频 ID")
	}

	for i, frame := range []int{0, 300, 600} {
		slide := &model.Slide{VideoID: video.ID, FrameNumber: frame, Timestamp: float64(frame) / 30, ImagePath: "p.jpg", OrderIndex: i}
		if err := s.CreateSlide(slide); err != nil {
			t.Fatalf("创建幻灯片失败: %v", err)
		}
		if err := s.CreateTextExtract(&model.TextExtract{SlideID: slide.ID, OriginalText: "原文", SuggestedText: "摘要"}); err != nil {
			t.Fatalf("创建文本失败: %v", err)
		}
	}

	slides, err := s.ListSlides(video.ID)
	if err != nil {
		t.Fatalf("查询幻灯片失败: %v", err)
	}
	if len(slides) != 3 {
		t.Fatalf("期望 3 张幻灯片，得到 %d", len(slides))
	}

	// 按帧号升序
	for i := 1; i < len(slides); i++ {
		if slides[i].FrameNumber <= slides[i-1].FrameNumber {
			t.Fatalf("幻灯片应按帧号升序排列")
		}
	}
}

func TestStoreRecordAudioFailure(t *testing.T) {
	s := testStore(t)

	videoID := uint(1)
	s.RecordAudioFailure(&videoID, nil, 0, 300, 3, "ffmpeg", "提取失败", "stderr", `{"ffmpeg_log_path":"x.log"}`)
	s.RecordAudioFailure(&videoID, nil, 0, 300, 3, "fallback-decoder", "回退失败", "stderr2", "")

	failures, err := s.ListAudioFailures(&videoID)
	if err != nil {
		t.Fatalf("查询失败记录失败: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("期望 2 条失败记录，得到 %d", len(failures))
	}

	// 其他视频的过滤
	other := uint(99)
	failures, _ = s.ListAudioFailures(&other)
	if len(failures) != 0 {
		t.Fatalf("过滤不应返回其他视频的记录")
	}
}

func TestStorePersistSample(t *testing.T) {
	s := testStore(t)

	video := &model.Video{Filename: "a.mp4"}
	if err := s.CreateVideo(video); err != nil {
		t.Fatalf("创建视频失败: %v", err)
	}
	slide := &model.Slide{VideoID: video.ID, FrameNumber: 100, ImagePath: "p.jpg"}
	if err := s.CreateSlide(slide); err != nil {
		t.Fatalf("创建幻灯片失败: %v", err)
	}
	if err := s.CreateTextExtract(&model.TextExtract{SlideID: slide.ID, OriginalText: ""}); err != nil {
		t.Fatalf("创建文本失败: %v", err)
	}

	// 样本落到帧号不超过来源帧的最新幻灯片
	if err := s.PersistSample(video.ID, 150, "补写的转写"); err != nil {
		t.Fatalf("持久化样本失败: %v", err)
	}

	extracts, _ := s.ListTextExtracts(slide.ID)
	if len(extracts) != 1 || extracts[0].OriginalText != "补写的转写" {
		t.Fatalf("样本未写入幻灯片文本: %+v", extracts)
	}

	// 找不到归属幻灯片时静默放弃
	if err := s.PersistSample(video.ID, 50, "无归属"); err != nil {
		t.Fatalf("无归属样本不应报错: %v", err)
	}
}

func TestStoreUpdateFinalText(t *testing.T) {
	s := testStore(t)

	video := &model.Video{Filename: "a.mp4"}
	s.CreateVideo(video)
	slide := &model.Slide{VideoID: video.ID, FrameNumber: 0, ImagePath: "p.jpg"}
	s.CreateSlide(slide)
	extract := &model.TextExtract{SlideID: slide.ID, OriginalText: "原文", SuggestedText: "摘要"}
	s.CreateTextExtract(extract)

	if err := s.UpdateFinalText(extract.ID, "人工修订"); err != nil {
		t.Fatalf("更新最终文本失败: %v", err)
	}

	extracts, _ := s.ListTextExtracts(slide.ID)
	if extracts[0].FinalText != "人工修订" {
		t.Fatalf("最终文本未更新: %+v", extracts[0])
	}

	// 编辑层不触碰核心写入的字段
	if extracts[0].OriginalText != "原文" || extracts[0].SuggestedText != "摘要" {
		t.Fatalf("编辑不应修改原文与摘要: %+v", extracts[0])
	}
}
