package router

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/handler"
	"go.uber.org/zap"
)

const sessionName = "lensfolio_session"

// Config 描述路由需要的会话与静态文件配置。
type Config struct {
	SessionSecret string
	UploadDir     string
	UploadURLPath string
	Logger        *zap.Logger
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(recovery(logger), requestLogger(logger))

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	uploadURL := "/" + strings.Trim(cfg.UploadURLPath, "/")
	if uploadURL == "/" {
		uploadURL = "/static/uploads"
	}
	if cfg.UploadDir != "" {
		r.Static(uploadURL, cfg.UploadDir)
		if uploadURL != "/uploads" {
			r.Static("/uploads", cfg.UploadDir)
		}
	}

	r.GET("/healthz", api.HealthCheck)

	public := r.Group("/api")
	public.Use(api.LocaleMiddleware())
	{
		public.GET("/picture-sets", api.ListPublicPictureSets)
		public.GET("/picture-sets/:id", api.GetPublicPictureSet)
	}

	admin := r.Group("/admin/api")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		auth := admin.Group("")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/picture-sets", api.ListPictureSets)
			auth.GET("/picture-sets/:id", api.GetPictureSet)
			auth.POST("/picture-sets", api.CreatePictureSet)
			auth.PUT("/picture-sets/:id", api.UpdatePictureSet)
			auth.DELETE("/picture-sets/:id", api.DeletePictureSet)
			auth.POST("/picture-sets/:id/translations/fill", api.FillPictureSetTranslations)

			auth.POST("/uploads", api.UploadImage)

			auth.GET("/tags", api.GetTags)
			auth.DELETE("/tags/:id", api.DeleteTag)

			auth.GET("/sections", api.ListSections)
			auth.POST("/sections", api.CreateSection)

			auth.GET("/settings", api.GetSystemSettings)
			auth.PUT("/settings", api.UpdateSystemSettings)
			auth.POST("/settings/ai/test", api.TestAIConnection)
		}
	}

	return r
}
