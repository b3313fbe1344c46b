package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/service"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 汇总 handler 依赖的服务。
type Options struct {
	DB          *gorm.DB
	PictureSets *service.PictureSetService
	Taxonomy    *service.TaxonomyService
	Sections    *service.SectionService
	System      *service.SystemSettingService
	Store       storage.Store
	Logger      *zap.Logger
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	pictureSets *service.PictureSetService
	taxonomy    *service.TaxonomyService
	sections    *service.SectionService
	system      *service.SystemSettingService
	store       storage.Store
	logger      *zap.Logger
}

const (
	siteSettingsContextKey = "__site_settings"
	defaultSiteName        = "Lensfolio"
)

// NewAPI constructs a handler set with shared services.
func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		db:          opts.DB,
		pictureSets: opts.PictureSets,
		taxonomy:    opts.Taxonomy,
		sections:    opts.Sections,
		system:      opts.System,
		store:       opts.Store,
		logger:      logger,
	}
}

// siteName 读取站点名称并在单个请求内缓存。
func (a *API) siteName(c *gin.Context) string {
	if cached, exists := c.Get(siteSettingsContextKey); exists {
		if name, ok := cached.(string); ok {
			return name
		}
	}

	name := defaultSiteName
	if a.system != nil {
		settings, err := a.system.GetSettings(c.Request.Context())
		if err != nil {
			c.Error(err)
		} else if trimmed := strings.TrimSpace(settings.SiteName); trimmed != "" {
			name = trimmed
		}
	}
	c.Set(siteSettingsContextKey, name)
	return name
}
