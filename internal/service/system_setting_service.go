package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lensfolio/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"

	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	defaultSiteName        = "Lensfolio"
)

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述后台可配置的站点与 AI 选项。
// VisionModel 用于图片分析，TextModel 用于翻译等纯文本调用，留空时使用内置默认模型。
type SystemSettings struct {
	SiteName       string `json:"siteName"`
	AIProvider     string `json:"aiProvider"`
	OpenAIAPIKey   string `json:"openaiApiKey"`
	DeepSeekAPIKey string `json:"deepseekApiKey"`
	VisionModel    string `json:"visionModel"`
	TextModel      string `json:"textModel"`
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	SiteName       string
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	VisionModel    string
	TextModel      string
}

type settingField struct {
	key   string
	value func(*SystemSettings) *string
}

var settingFields = []settingField{
	{db.SettingKeySiteName, func(s *SystemSettings) *string { return &s.SiteName }},
	{db.SettingKeyAIProvider, func(s *SystemSettings) *string { return &s.AIProvider }},
	{db.SettingKeyOpenAIAPIKey, func(s *SystemSettings) *string { return &s.OpenAIAPIKey }},
	{db.SettingKeyDeepSeekAPIKey, func(s *SystemSettings) *string { return &s.DeepSeekAPIKey }},
	{db.SettingKeyVisionModel, func(s *SystemSettings) *string { return &s.VisionModel }},
	{db.SettingKeyTextModel, func(s *SystemSettings) *string { return &s.TextModel }},
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SystemSettingService 读写 system_settings 键值表，并提供 AI Key 连通性测试。
type SystemSettingService struct {
	db              *gorm.DB
	httpClient      httpDoer
	openAIBaseURL   string
	deepSeekBaseURL string
}

func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{
		db:              gdb,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		openAIBaseURL:   defaultOpenAIBaseURL,
		deepSeekBaseURL: defaultDeepSeekBaseURL,
	}
}

// GetSettings 读取系统设置，缺失或无效的项返回默认值。
func (s *SystemSettingService) GetSettings(ctx context.Context) (SystemSettings, error) {
	keys := make([]string, 0, len(settingFields))
	for _, field := range settingFields {
		keys = append(keys, field.key)
	}

	var records []db.SystemSetting
	if err := s.db.WithContext(ctx).Where("key IN ?", keys).Find(&records).Error; err != nil {
		return normalizeSettings(SystemSettings{}), fmt.Errorf("load system settings: %w", err)
	}

	stored := make(map[string]string, len(records))
	for _, record := range records {
		stored[record.Key] = record.Value
	}

	var result SystemSettings
	for _, field := range settingFields {
		*field.value(&result) = stored[field.key]
	}
	return normalizeSettings(result), nil
}

// UpdateSettings 在一个事务内写入全部设置项。
func (s *SystemSettingService) UpdateSettings(ctx context.Context, input SystemSettingsInput) (SystemSettings, error) {
	settings := normalizeSettings(SystemSettings(input))

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, field := range settingFields {
			if err := upsertSetting(tx, field.key, *field.value(&settings)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}
	return settings, nil
}

func normalizeSettings(settings SystemSettings) SystemSettings {
	for _, field := range settingFields {
		value := field.value(&settings)
		*value = strings.TrimSpace(*value)
	}
	if settings.SiteName == "" {
		settings.SiteName = defaultSiteName
	}
	settings.AIProvider = normalizeAIProvider(settings.AIProvider)
	return settings
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := db.SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

// SetHTTPClient 替换连通性测试使用的 HTTP 客户端。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	s.httpClient = client
}

func (s *SystemSettingService) SetOpenAIBaseURL(base string) {
	s.openAIBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

func (s *SystemSettingService) SetDeepSeekBaseURL(base string) {
	s.deepSeekBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

// TestAIConnection 请求平台的 /models 接口验证 API Key。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}

	endpoint := resolveAIEndpoint(provider, s.openAIBaseURL, s.deepSeekBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.base+"/models", nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint.provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "lensfolio-admin/1.0")

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 接口失败: %w", endpoint.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("%s 返回错误：%s (%s)", endpoint.label, resp.Status, msg)
		}
		return fmt.Errorf("%s 返回错误：%s", endpoint.label, resp.Status)
	}
	return nil
}

type aiEndpoint struct {
	provider string
	label    string
	base     string
}

// resolveAIEndpoint 规范化平台名称并选出对应的接口地址，未知平台按 OpenAI 处理。
func resolveAIEndpoint(provider, openAIBase, deepSeekBase string) aiEndpoint {
	if normalizeAIProvider(provider) == AIProviderDeepSeek {
		return aiEndpoint{provider: AIProviderDeepSeek, label: "DeepSeek", base: baseOrDefault(deepSeekBase, defaultDeepSeekBaseURL)}
	}
	return aiEndpoint{provider: AIProviderOpenAI, label: "OpenAI", base: baseOrDefault(openAIBase, defaultOpenAIBaseURL)}
}

func baseOrDefault(base, fallback string) string {
	if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
		return trimmed
	}
	return fallback
}

func normalizeAIProvider(provider string) string {
	if strings.EqualFold(strings.TrimSpace(provider), AIProviderDeepSeek) {
		return AIProviderDeepSeek
	}
	return AIProviderOpenAI
}
