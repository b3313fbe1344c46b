package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/service"
)

type sectionRequest struct {
	Name      string `json:"name" binding:"required,max=120"`
	SortOrder int    `json:"sortOrder"`
}

// ListSections 返回全部首页分区。
func (a *API) ListSections(c *gin.Context) {
	sections, err := a.sections.List(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取分区失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections})
}

// CreateSection 新建首页分区。
func (a *API) CreateSection(c *gin.Context) {
	var req sectionRequest
	if !bindJSON(c, &req, "分区名称不能为空") {
		return
	}

	section, err := a.sections.Create(c.Request.Context(), req.Name, req.SortOrder)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSectionExists):
			respondError(c, http.StatusBadRequest, "分区已存在")
		case errors.Is(err, service.ErrSectionNameMissing):
			respondError(c, http.StatusBadRequest, "分区名称不能为空")
		default:
			respondError(c, http.StatusInternalServerError, "创建分区失败")
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "分区创建成功", "section": section})
}
