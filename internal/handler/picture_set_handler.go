package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/service"
	"go.uber.org/zap"
)

// ListPictureSets 返回后台作品集列表，可按 published 过滤。
func (a *API) ListPictureSets(c *gin.Context) {
	page, err := a.pictureSets.List(c.Request.Context(), service.PictureSetFilter{
		Published: parseBoolQuery(c, "published"),
		Page:      parsePositiveQuery(c, "page", 1),
		PerPage:   parsePositiveQuery(c, "perPage", 20),
	})
	if err != nil {
		a.logger.Error("list picture sets failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "获取作品集列表失败")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetPictureSet 返回作品集详情。
func (a *API) GetPictureSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的作品集ID")
		return
	}

	detail, err := a.pictureSets.Get(c.Request.Context(), id)
	if err != nil {
		a.respondPictureSetError(c, err, "获取作品集失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"pictureSet": detail})
}

// CreatePictureSet 新建作品集。
func (a *API) CreatePictureSet(c *gin.Context) {
	var input service.PictureSetInput
	if !bindJSON(c, &input, "作品集数据格式不正确") {
		return
	}

	detail, err := a.pictureSets.Save(c.Request.Context(), 0, input)
	if err != nil {
		a.respondPictureSetError(c, err, "创建作品集失败")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "作品集创建成功", "pictureSet": detail})
}

// UpdatePictureSet 以提交的完整状态覆盖作品集。
func (a *API) UpdatePictureSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的作品集ID")
		return
	}

	var input service.PictureSetInput
	if !bindJSON(c, &input, "作品集数据格式不正确") {
		return
	}

	detail, err := a.pictureSets.Save(c.Request.Context(), id, input)
	if err != nil {
		a.respondPictureSetError(c, err, "保存作品集失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "作品集已保存", "pictureSet": detail})
}

// DeletePictureSet 删除作品集及其图片。
func (a *API) DeletePictureSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的作品集ID")
		return
	}

	if err := a.pictureSets.Delete(c.Request.Context(), id); err != nil {
		a.respondPictureSetError(c, err, "删除作品集失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "作品集已删除"})
}

// FillPictureSetTranslations 对作品集重新执行一次双语补全。
func (a *API) FillPictureSetTranslations(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的作品集ID")
		return
	}

	ctx := c.Request.Context()
	if err := a.pictureSets.FillTranslations(ctx, id); err != nil {
		a.respondPictureSetError(c, err, "补全翻译失败")
		return
	}
	detail, err := a.pictureSets.Get(ctx, id)
	if err != nil {
		a.respondPictureSetError(c, err, "获取作品集失败")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "翻译已补全", "pictureSet": detail})
}

func (a *API) respondPictureSetError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrPictureSetNotFound):
		respondError(c, http.StatusNotFound, "作品集不存在")
	case errors.Is(err, service.ErrPictureSetConflict):
		respondError(c, http.StatusConflict, "作品集已被其他请求修改，请刷新后重试")
	case errors.Is(err, service.ErrPictureNotInSet):
		respondError(c, http.StatusBadRequest, "图片不属于该作品集")
	case errors.Is(err, service.ErrDuplicatePicture):
		respondError(c, http.StatusBadRequest, "同一图片被重复提交")
	case errors.Is(err, service.ErrPictureImageMissing):
		respondError(c, http.StatusBadRequest, "图片地址不能为空")
	case errors.Is(err, service.ErrInvalidPosition):
		respondError(c, http.StatusBadRequest, "展示位置只能是 up 或 down")
	case errors.Is(err, service.ErrSectionNotFound):
		respondError(c, http.StatusBadRequest, "分区不存在")
	default:
		a.logger.Error(fallback, zap.Error(err))
		respondError(c, http.StatusInternalServerError, fallback)
	}
}
