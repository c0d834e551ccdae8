package server

import (
	"context"
	"net/http"
	"vid2doc/app/config"
	"vid2doc/app/database"
	"vid2doc/app/filewatcher"
	"vid2doc/app/handler"
	"vid2doc/app/jobs"
	"vid2doc/app/logger"
	"vid2doc/app/middleware"
	"vid2doc/app/service"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器
type Server struct {
	Config *config.Config
	Logger *logger.Logger
	gin    *gin.Engine
	http   *http.Server

	registry  *jobs.Registry
	store     *service.StoreService
	processor *service.ProcessorService
	watcher   *filewatcher.InboxWatcher
	cleanup   *service.CleanupService
}

// New 创建一个新的 Server 实例
func New(cfg *config.Config, log *logger.Logger) *Server {
	router := gin.Default()

	store := service.NewStoreService(database.GetDB(), log)
	registry := jobs.NewRegistry(cfg.Job, log, store)
	processor := service.NewProcessorService(cfg, log, registry, store)

	s := &Server{
		gin: router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		Config:    cfg,
		Logger:    log,
		registry:  registry,
		store:     store,
		processor: processor,
		cleanup:   service.NewCleanupService(cfg, log, registry),
	}

	watcher, err := filewatcher.NewInboxWatcher(cfg, processor, log)
	if err != nil {
		log.Errorf("创建收件目录监控失败: %v", err)
	} else {
		s.watcher = watcher
	}

	// 设置路由
	s.setupRoutes()

	return s
}

// Start 启动服务器
func (s *Server) Start() error {
	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)

	// 启动后台服务
	if err := s.cleanup.Start(); err != nil {
		s.Logger.Errorf("启动定期清理失败: %v", err)
	}
	if err := s.watcher.Start(); err != nil {
		s.Logger.Errorf("启动收件目录监控失败: %v", err)
	}

	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// 停止后台服务
	s.cleanup.Stop()
	if err := s.watcher.Stop(); err != nil {
		s.Logger.Errorf("停止收件目录监控失败: %v", err)
	}

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	// 创建处理器实例
	authHandler := handler.NewAuthHandler(s.Config)
	healthHandler := handler.NewHealthHandler(s.Config)
	processHandler := handler.NewProcessHandler(s.Config, s.Logger, s.processor, s.registry)
	videoHandler := handler.NewVideoHandler(s.store)

	// 幻灯片图片与预览图静态访问
	s.gin.Static("/output", s.Config.Storage.OutputDir)

	// API路由组
	api := s.gin.Group("/api")

	// 无需认证的路由
	api.GET("/health", healthHandler.Health)
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 上传与任务提交
		protected.POST("/upload", processHandler.Upload)
		protected.POST("/process", processHandler.Process)

		// 任务进度
		jobGroup := protected.Group("/jobs")
		{
			jobGroup.GET("/", processHandler.ListJobs)
			jobGroup.GET("/:id/progress", processHandler.GetProgress)
			jobGroup.GET("/:id/stream", processHandler.Stream)
			jobGroup.POST("/:id/cancel", processHandler.Cancel)
		}

		// 处理结果
		videos := protected.Group("/videos")
		{
			videos.GET("/", videoHandler.ListVideos)
			videos.GET("/:id", videoHandler.GetVideo)
			videos.GET("/:id/slides", videoHandler.GetSlides)
		}
		protected.PUT("/text-extracts/:id", videoHandler.UpdateFinalText)
		protected.GET("/audio-failures", videoHandler.ListAudioFailures)
	}
}
