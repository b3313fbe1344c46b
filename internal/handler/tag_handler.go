package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/service"
)

// GetTags 获取标签列表，可通过 type 过滤。
func (a *API) GetTags(c *gin.Context) {
	tags, err := a.taxonomy.List(c.Request.Context(), c.Query("type"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取标签列表失败")
		return
	}

	response := make([]gin.H, 0, len(tags))
	for _, tag := range tags {
		response = append(response, gin.H{
			"id":   tag.ID,
			"name": tag.Name,
			"type": tag.Type,
			"slug": tag.Slug,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tags": response})
}

// DeleteTag 删除标签
func (a *API) DeleteTag(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的标签ID")
		return
	}

	if err := a.taxonomy.Delete(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrTagInUse):
			respondError(c, http.StatusBadRequest, "标签正在被作品使用，无法删除")
		case errors.Is(err, service.ErrTagNotFound):
			respondError(c, http.StatusNotFound, "标签不存在")
		default:
			respondError(c, http.StatusInternalServerError, "删除标签失败")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "标签删除成功"})
}
