package handler

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/service"
	"github.com/lensfolio/internal/storage"
	"go.uber.org/zap"
)

const maxUploadSize = 40 << 20

// UploadImage 保存上传的图片并返回对象 key、公开地址与图片元数据。
// variant=raw 时对象存放在 raw/ 前缀下，用于保存原图。
func (a *API) UploadImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "未找到上传的图片")
		return
	}
	if file.Size > maxUploadSize {
		respondError(c, http.StatusRequestEntityTooLarge, "图片文件过大")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		respondError(c, http.StatusBadRequest, "只允许上传图片文件")
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "读取上传文件失败")
		return
	}
	defer src.Close()

	meta, err := service.ReadImageMetadata(src)
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedImage) {
			respondError(c, http.StatusBadRequest, "无法识别的图片格式")
			return
		}
		respondError(c, http.StatusBadRequest, "读取图片信息失败")
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		respondError(c, http.StatusInternalServerError, "读取上传文件失败")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext == "" {
		ext = "." + meta.Format
	}
	key := storage.NewKey(ext)
	if c.PostForm("variant") == "raw" {
		key = "raw/" + key
	}

	stored, err := a.store.Put(c.Request.Context(), key, src)
	if err != nil {
		a.logger.Error("store upload failed", zap.String("key", key), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "保存文件失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "上传成功",
		"key":      stored,
		"url":      a.store.PublicURL(stored),
		"metadata": meta,
	})
}
