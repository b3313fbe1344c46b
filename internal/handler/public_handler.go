package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/locale"
	"github.com/lensfolio/internal/service"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

type publicLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type publicPicture struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	Subtitle        string          `json:"subtitle"`
	DescriptionHTML string          `json:"descriptionHtml"`
	ImageURL        string          `json:"imageUrl"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	Style           string          `json:"style,omitempty"`
	Season          string          `json:"season,omitempty"`
	Tags            []string        `json:"tags"`
	Location        *publicLocation `json:"location,omitempty"`
}

type publicPictureSet struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	Subtitle        string          `json:"subtitle"`
	DescriptionHTML string          `json:"descriptionHtml"`
	CoverURL        string          `json:"coverUrl,omitempty"`
	Position        string          `json:"position"`
	Season          string          `json:"season,omitempty"`
	Tags            []string        `json:"tags"`
	Categories      []string        `json:"categories"`
	Location        *publicLocation `json:"location,omitempty"`
	Pictures        []publicPicture `json:"pictures"`
}

type publicPictureSetSummary struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	CoverURL string `json:"coverUrl,omitempty"`
	Position string `json:"position"`
	Pictures int64  `json:"pictures"`
}

// ListPublicPictureSets 返回已发布的作品集，文本按请求语言本地化。
func (a *API) ListPublicPictureSets(c *gin.Context) {
	pref := a.requestLocale(c)
	published := true
	page, err := a.pictureSets.List(c.Request.Context(), service.PictureSetFilter{
		Published: &published,
		Page:      parsePositiveQuery(c, "page", 1),
		PerPage:   parsePositiveQuery(c, "perPage", 12),
	})
	if err != nil {
		a.logger.Error("list public picture sets failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load picture sets")
		return
	}

	items := make([]publicPictureSetSummary, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, publicPictureSetSummary{
			ID:       item.ID,
			Title:    localizedText(pref.Language, item.Translations.Title, item.Title),
			Subtitle: localizedText(pref.Language, item.Translations.Subtitle, item.Subtitle),
			CoverURL: item.CoverPublicURL,
			Position: item.Position,
			Pictures: item.PictureCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"site":     a.siteName(c),
		"language": pref.Language,
		"items":    items,
		"total":    page.Total,
		"page":     page.Page,
		"perPage":  page.PerPage,
	})
}

// GetPublicPictureSet 返回单个已发布作品集，描述以 Markdown 渲染并清洗。
func (a *API) GetPublicPictureSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusNotFound, "picture set not found")
		return
	}

	detail, err := a.pictureSets.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrPictureSetNotFound) {
			respondError(c, http.StatusNotFound, "picture set not found")
			return
		}
		a.logger.Error("load public picture set failed", zap.Uint("id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to load picture set")
		return
	}
	if !detail.IsPublished {
		respondError(c, http.StatusNotFound, "picture set not found")
		return
	}

	pref := a.requestLocale(c)
	view, err := buildPublicPictureSet(pref.Language, detail)
	if err != nil {
		a.logger.Error("render picture set failed", zap.Uint("id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "failed to render picture set")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"site":       a.siteName(c),
		"language":   pref.Language,
		"pictureSet": view,
	})
}

func buildPublicPictureSet(language string, detail *service.PictureSetDetail) (publicPictureSet, error) {
	description, err := renderMarkdown(localizedText(language, detail.Translations.Description, detail.Description))
	if err != nil {
		return publicPictureSet{}, err
	}

	view := publicPictureSet{
		ID:              detail.ID,
		Title:           localizedText(language, detail.Translations.Title, detail.Title),
		Subtitle:        localizedText(language, detail.Translations.Subtitle, detail.Subtitle),
		DescriptionHTML: description,
		CoverURL:        detail.CoverPublicURL,
		Position:        detail.Position,
		Tags:            tagNames(detail.Tags),
		Categories:      tagNames(detail.Categories),
		Location:        toPublicLocation(detail.Location),
		Pictures:        make([]publicPicture, 0, len(detail.Pictures)),
	}
	if detail.Season != nil {
		view.Season = detail.Season.Name
	}

	for _, picture := range detail.Pictures {
		pictureDescription, err := renderMarkdown(localizedText(language, picture.Translations.Description, picture.Description))
		if err != nil {
			return publicPictureSet{}, err
		}
		item := publicPicture{
			ID:              picture.ID,
			Title:           localizedText(language, picture.Translations.Title, picture.Title),
			Subtitle:        localizedText(language, picture.Translations.Subtitle, picture.Subtitle),
			DescriptionHTML: pictureDescription,
			ImageURL:        picture.ImagePublicURL,
			Width:           picture.ImageWidth,
			Height:          picture.ImageHeight,
			Style:           picture.Style,
			Tags:            tagNames(picture.Tags),
			Location:        toPublicLocation(picture.Location),
		}
		if picture.Season != nil {
			item.Season = picture.Season.Name
		}
		view.Pictures = append(view.Pictures, item)
	}
	return view, nil
}

func localizedText(language string, text service.LocalizedText, base string) string {
	return locale.Pick(language, text.EN, text.ZH, base)
}

func tagNames(tags []service.TagSummary) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}

func toPublicLocation(location *db.Location) *publicLocation {
	if location == nil {
		return nil
	}
	return &publicLocation{Name: location.Name, Latitude: location.Latitude, Longitude: location.Longitude}
}

func renderMarkdown(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return string(sanitizer.SanitizeBytes(buf.Bytes())), nil
}
