package service

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage 表示上传内容无法识别为图片。
var ErrUnsupportedImage = errors.New("unsupported image format")

// ImageMetadata 是上传时从图片中读取的尺寸与 EXIF 信息。
type ImageMetadata struct {
	Format    string     `json:"format"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	TakenAt   *time.Time `json:"takenAt,omitempty"`
}

// ReadImageMetadata 读取图片尺寸；EXIF 缺失或损坏时只返回尺寸。
// 调用结束后 r 的读取位置不确定，需要复用时由调用方重新 Seek。
func ReadImageMetadata(r io.ReadSeeker) (ImageMetadata, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	meta := ImageMetadata{Format: format, Width: config.Width, Height: config.Height}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return meta, nil
	}
	x, err := exif.Decode(r)
	if err != nil {
		return meta, nil
	}
	if lat, lng, err := x.LatLong(); err == nil {
		meta.Latitude, meta.Longitude = &lat, &lng
	}
	if taken, err := x.DateTime(); err == nil {
		meta.TakenAt = &taken
	}
	return meta, nil
}
