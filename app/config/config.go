package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Storage StorageConfig `mapstructure:"storage"`
	Detect  DetectConfig  `mapstructure:"detect"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Whisper WhisperConfig `mapstructure:"whisper"`
	Summary SummaryConfig `mapstructure:"summary"`
	Job     JobConfig     `mapstructure:"job"`
	Watcher WatcherConfig `mapstructure:"watcher"`
	Cleanup CleanupConfig `mapstructure:"cleanup"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`      // JWT 密钥
	ExpireTime int    `mapstructure:"expire_time"` // 过期时间（小时）
	Issuer     string `mapstructure:"issuer"`      // 签发者
}

// StorageConfig 各类工作目录
type StorageConfig struct {
	UploadDir  string `mapstructure:"upload_dir"`  // 上传视频目录
	OutputDir  string `mapstructure:"output_dir"`  // 幻灯片图片输出目录
	WavDir     string `mapstructure:"wav_dir"`     // 音频片段工作目录（按视频ID分命名空间）
	ModelDir   string `mapstructure:"model_dir"`   // whisper 模型文件目录
	FailLogDir string `mapstructure:"fail_log_dir"` // 音频失败完整日志目录
	InboxDir   string `mapstructure:"inbox_dir"`   // 自动处理监控目录
}

// DetectConfig 幻灯片切换检测参数
type DetectConfig struct {
	ThresholdSSIM           float64 `mapstructure:"threshold_ssim"`            // 结构相似度阈值
	ThresholdHist           float64 `mapstructure:"threshold_hist"`            // 直方图相关性阈值
	FrameGap                int     `mapstructure:"frame_gap"`                 // 去抖窗口帧数
	TransitionLimit         int     `mapstructure:"transition_limit"`          // 确认边界所需窗口数
	ScalePercent            float64 `mapstructure:"scale_percent"`             // 比较分辨率百分比
	TargetResolutionPercent float64 `mapstructure:"target_resolution_percent"` // 保存分辨率百分比
	HistogramBins           int     `mapstructure:"histogram_bins"`            // 直方图分桶数
}

// AudioConfig 音频片段提取参数
type AudioConfig struct {
	RetryAttempts         int     `mapstructure:"retry_attempts"`           // ffmpeg 重试次数
	SkipOnFailure         bool    `mapstructure:"skip_on_failure"`          // 失败时跳过而不中断任务
	MinSlideAudioSeconds  float64 `mapstructure:"min_slide_audio_seconds"`  // 低于该时长的片段并入下一段
	MaxWavFiles           int     `mapstructure:"max_wav_files"`            // 每个命名空间保留的 wav 上限
	FFmpegPath            string  `mapstructure:"ffmpeg_path"`
	FFprobePath           string  `mapstructure:"ffprobe_path"`
}

// WhisperConfig 语音转写参数
type WhisperConfig struct {
	Model      string `mapstructure:"model"`       // 模型规格：tiny/base/small/medium/large
	BinaryPath string `mapstructure:"binary_path"` // whisper.cpp 可执行文件
	Language   string `mapstructure:"language"`
	Threads    int    `mapstructure:"threads"`
}

// SummaryConfig 摘要参数
type SummaryConfig struct {
	MinLength int    `mapstructure:"min_length"`
	MaxLength int    `mapstructure:"max_length"`
	Model     string `mapstructure:"model"`   // 远端摘要模型
	APIKey    string `mapstructure:"api_key"` // 为空时使用本地降级摘要
}

// JobConfig 任务进度上报参数
type JobConfig struct {
	ProgressThrottleSeconds float64 `mapstructure:"progress_throttle_seconds"` // 进度更新最小间隔
	ProgressMinDelta        float64 `mapstructure:"progress_min_delta"`        // 绕过节流的最小百分比增量
	MaxLogEntries           int     `mapstructure:"max_log_entries"`           // 日志环形缓冲上限
	MaxExtracts             int     `mapstructure:"max_extracts"`              // 文本预览环形缓冲上限
	ProgressInterval        int     `mapstructure:"progress_interval"`         // 每 N 帧上报一次进度
	PreviewInterval         int     `mapstructure:"preview_interval"`          // 每 N 帧刷新一次预览缩略图
}

// WatcherConfig 目录监控参数
type WatcherConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	SettleSeconds int  `mapstructure:"settle_seconds"` // 文件写入稳定等待时间
}

// CleanupConfig 定期清理参数
type CleanupConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`  // cron 表达式
	JobTTL   int    `mapstructure:"job_ttl"`   // 终态任务保留小时数
}

func Load() *Config {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("无法解码配置: %v", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		log.Fatalf("配置验证失败: %v", err)
	}

	return &config
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")
	viper.SetDefault("server.username", "admin")
	viper.SetDefault("server.password", "admin")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	// JWT默认配置
	viper.SetDefault("jwt.secret", "your-secret-key-change-in-production")
	viper.SetDefault("jwt.expire_time", 24) // 24小时
	viper.SetDefault("jwt.issuer", "vid2doc")

	// 工作目录
	viper.SetDefault("storage.upload_dir", "data/uploads")
	viper.SetDefault("storage.output_dir", "data/output")
	viper.SetDefault("storage.wav_dir", "data/wav")
	viper.SetDefault("storage.model_dir", "data/models")
	viper.SetDefault("storage.fail_log_dir", "data/logs/audio_failures")
	viper.SetDefault("storage.inbox_dir", "data/inbox")

	// 检测默认参数
	viper.SetDefault("detect.threshold_ssim", 0.9)
	viper.SetDefault("detect.threshold_hist", 0.9)
	viper.SetDefault("detect.frame_gap", 10)
	viper.SetDefault("detect.transition_limit", 3)
	viper.SetDefault("detect.scale_percent", 100.0)
	viper.SetDefault("detect.target_resolution_percent", 100.0)
	viper.SetDefault("detect.histogram_bins", 256)

	// 音频默认参数
	viper.SetDefault("audio.retry_attempts", 3)
	viper.SetDefault("audio.skip_on_failure", true)
	viper.SetDefault("audio.min_slide_audio_seconds", 0.0)
	viper.SetDefault("audio.max_wav_files", 200)
	viper.SetDefault("audio.ffmpeg_path", "ffmpeg")
	viper.SetDefault("audio.ffprobe_path", "ffprobe")

	// 转写默认参数
	viper.SetDefault("whisper.model", "base")
	viper.SetDefault("whisper.binary_path", "whisper-cli")
	viper.SetDefault("whisper.language", "auto")
	viper.SetDefault("whisper.threads", 4)

	// 摘要默认参数
	viper.SetDefault("summary.min_length", 30)
	viper.SetDefault("summary.max_length", 150)
	viper.SetDefault("summary.model", "gemini-2.0-flash")
	viper.SetDefault("summary.api_key", "")

	// 任务进度默认参数
	viper.SetDefault("job.progress_throttle_seconds", 0.5)
	viper.SetDefault("job.progress_min_delta", 1.0)
	viper.SetDefault("job.max_log_entries", 200)
	viper.SetDefault("job.max_extracts", 25)
	viper.SetDefault("job.progress_interval", 50)
	viper.SetDefault("job.preview_interval", 120)

	// 目录监控默认参数
	viper.SetDefault("watcher.enabled", false)
	viper.SetDefault("watcher.settle_seconds", 3)

	// 清理默认参数
	viper.SetDefault("cleanup.enabled", true)
	viper.SetDefault("cleanup.schedule", "0 * * * *")
	viper.SetDefault("cleanup.job_ttl", 24)
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if config.JWT.Secret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}
	if config.Detect.ThresholdSSIM <= 0 || config.Detect.ThresholdSSIM > 1 {
		return fmt.Errorf("threshold_ssim 必须在 (0,1] 区间内")
	}
	if config.Detect.ThresholdHist <= 0 || config.Detect.ThresholdHist > 1 {
		return fmt.Errorf("threshold_hist 必须在 (0,1] 区间内")
	}
	if config.Detect.FrameGap <= 0 {
		return fmt.Errorf("frame_gap 必须为正数")
	}
	if config.Detect.TransitionLimit <= 0 {
		return fmt.Errorf("transition_limit 必须为正数")
	}
	if config.Detect.HistogramBins <= 0 {
		return fmt.Errorf("histogram_bins 必须为正数")
	}
	if config.Audio.RetryAttempts <= 0 {
		return fmt.Errorf("audio.retry_attempts 必须为正数")
	}
	return nil
}
