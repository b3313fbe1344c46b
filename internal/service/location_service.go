package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lensfolio/internal/db"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ErrGeocodeNoResult 表示地理编码服务没有返回任何结果。
var ErrGeocodeNoResult = errors.New("geocoder returned no result")

// LocationInput 是请求中的地点信息，坐标缺失时可由 Geocoder 补全。
type LocationInput struct {
	Name      string   `json:"name" binding:"max=255"`
	Latitude  *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
}

func (in LocationInput) hasCoordinates() bool {
	return in.Latitude != nil && in.Longitude != nil
}

// IsEmpty 表示请求显式清空了地点。
func (in LocationInput) IsEmpty() bool {
	return strings.TrimSpace(in.Name) == "" && !in.hasCoordinates()
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Geocoder 把地名解析为坐标。
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Coordinates, error)
}

// LocationLink 描述某类 owner 的地点关联表。
type LocationLink struct {
	Model       func() any
	Table       string
	OwnerColumn string
}

var (
	SetLocations = LocationLink{
		Model:       func() any { return &db.PictureSetLocation{} },
		Table:       "picture_set_locations",
		OwnerColumn: "picture_set_id",
	}
	PictureLocations = LocationLink{
		Model:       func() any { return &db.PictureLocation{} },
		Table:       "picture_locations",
		OwnerColumn: "picture_id",
	}
)

// LocationService 以 (name, latitude, longitude) 精确匹配查找或创建地点。
type LocationService struct {
	db       *gorm.DB
	geocoder Geocoder
	logger   *zap.Logger
}

func NewLocationService(gdb *gorm.DB, geocoder Geocoder, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{db: gdb, geocoder: geocoder, logger: logger}
}

// ResolveLocation 精确匹配名称与坐标，不存在时插入新行。
func (s *LocationService) ResolveLocation(ctx context.Context, tx *gorm.DB, name string, lat, lng float64) (uint, error) {
	if tx == nil {
		tx = s.db
	}
	tx = tx.WithContext(ctx)
	name = strings.TrimSpace(name)

	var existing db.Location
	err := tx.Where("name = ? AND latitude = ? AND longitude = ?", name, lat, lng).
		Order("id asc").
		Take(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("find location: %w", err)
	}

	location := db.Location{Name: name, Latitude: lat, Longitude: lng}
	if err := tx.Create(&location).Error; err != nil {
		return 0, fmt.Errorf("create location: %w", err)
	}
	return location.ID, nil
}

// ReplacePrimaryLocation 删除 owner 的全部地点关联后插入唯一的主地点。
func (s *LocationService) ReplacePrimaryLocation(ctx context.Context, tx *gorm.DB, link LocationLink, ownerID, locationID uint) error {
	if err := s.ClearLocations(ctx, tx, link, ownerID); err != nil {
		return err
	}
	if tx == nil {
		tx = s.db
	}
	row := map[string]interface{}{
		link.OwnerColumn: ownerID,
		"location_id":    locationID,
		"is_primary":     true,
	}
	if err := tx.WithContext(ctx).Model(link.Model()).Create(row).Error; err != nil {
		return fmt.Errorf("link primary location: %w", err)
	}
	return nil
}

// ClearLocations 删除 owner 的全部地点关联。
func (s *LocationService) ClearLocations(ctx context.Context, tx *gorm.DB, link LocationLink, ownerID uint) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.WithContext(ctx).Where(link.OwnerColumn+" = ?", ownerID).Delete(link.Model()).Error; err != nil {
		return fmt.Errorf("clear location links: %w", err)
	}
	return nil
}

// Geocode 在坐标缺失且配置了 Geocoder 时按名称补全坐标；失败时记录日志并原样返回。
// 该调用访问外部服务，应在事务之外执行。
func (s *LocationService) Geocode(ctx context.Context, in LocationInput) LocationInput {
	name := strings.TrimSpace(in.Name)
	if in.hasCoordinates() || name == "" || s.geocoder == nil {
		return in
	}
	coords, err := s.geocoder.Geocode(ctx, name)
	if err != nil {
		s.logger.Warn("geocode location failed", zap.String("name", name), zap.Error(err))
		return in
	}
	lat, lng := coords.Latitude, coords.Longitude
	in.Latitude, in.Longitude = &lat, &lng
	return in
}

// ApplyInput 根据请求中的地点更新 owner 的主地点：空输入清除关联，缺少坐标时跳过。
func (s *LocationService) ApplyInput(ctx context.Context, tx *gorm.DB, link LocationLink, ownerID uint, in *LocationInput) error {
	if in == nil {
		return nil
	}
	if in.IsEmpty() {
		return s.ClearLocations(ctx, tx, link, ownerID)
	}
	if !in.hasCoordinates() {
		s.logger.Warn("location has no coordinates, keeping previous link",
			zap.String("owner", link.OwnerColumn),
			zap.Uint("owner_id", ownerID),
			zap.String("name", in.Name),
		)
		return nil
	}
	locationID, err := s.ResolveLocation(ctx, tx, in.Name, *in.Latitude, *in.Longitude)
	if err != nil {
		return err
	}
	return s.ReplacePrimaryLocation(ctx, tx, link, ownerID, locationID)
}

// PrimaryLocation 返回 owner 的主地点，没有时返回 nil。
func (s *LocationService) PrimaryLocation(ctx context.Context, tx *gorm.DB, link LocationLink, ownerID uint) (*db.Location, error) {
	if tx == nil {
		tx = s.db
	}
	var location db.Location
	err := tx.WithContext(ctx).
		Joins("JOIN "+link.Table+" ON "+link.Table+".location_id = locations.id").
		Where(link.Table+"."+link.OwnerColumn+" = ? AND "+link.Table+".is_primary = ?", ownerID, true).
		Take(&location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load primary location: %w", err)
	}
	return &location, nil
}

// NominatimGeocoder 调用 OpenStreetMap Nominatim 兼容接口。
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	http      httpDoer
	limiter   *rate.Limiter
}

// NewNominatimGeocoder 按 Nominatim 使用策略限制为每秒一次请求。
func NewNominatimGeocoder(baseURL, userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		userAgent: strings.TrimSpace(userAgent),
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (g *NominatimGeocoder) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	g.http = client
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, query string) (Coordinates, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Coordinates{}, ErrGeocodeNoResult
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Coordinates{}, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("request geocoder: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Coordinates{}, fmt.Errorf("read geocoder response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Coordinates{}, fmt.Errorf("geocoder returned %s", resp.Status)
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(results) == 0 {
		return Coordinates{}, ErrGeocodeNoResult
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse longitude: %w", err)
	}
	return Coordinates{Latitude: lat, Longitude: lng}, nil
}
