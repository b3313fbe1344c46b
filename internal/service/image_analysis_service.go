package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ImageAnalysisKind 表示需要模型从图片中生成的内容类型。
type ImageAnalysisKind string

const (
	AnalysisTitle       ImageAnalysisKind = "title"
	AnalysisSubtitle    ImageAnalysisKind = "subtitle"
	AnalysisTags        ImageAnalysisKind = "tags"
	AnalysisDescription ImageAnalysisKind = "description"
)

// ImageAnalyzer 根据图片地址生成标题、副标题、标签或描述。
type ImageAnalyzer interface {
	Analyze(ctx context.Context, imageURL string, kind ImageAnalysisKind) (string, error)
}

const (
	defaultOpenAIAnalysisModel   = "gpt-4o-mini"
	defaultDeepSeekAnalysisModel = "deepseek-chat"
	defaultAnalysisTemperature   = 0.4
)

var analysisPrompts = map[ImageAnalysisKind]struct {
	prompt    string
	maxTokens int
}{
	AnalysisTitle:       {prompt: "请为这张摄影作品起一个简洁的中文标题，不超过 12 个字，只输出标题本身。", maxTokens: 40},
	AnalysisSubtitle:    {prompt: "请为这张摄影作品写一句中文副标题，描述画面氛围，不超过 24 个字，只输出副标题本身。", maxTokens: 80},
	AnalysisTags:        {prompt: "请为这张摄影作品给出 3 到 8 个中文主题标签，使用逗号分隔，只输出标签。", maxTokens: 80},
	AnalysisDescription: {prompt: "请用两到三句中文描述这张摄影作品的主体、光线与构图，只输出描述。", maxTokens: 300},
}

const analysisSystemPrompt = "你是一名摄影作品编辑，负责根据图片为作品集撰写简洁、准确的文字。"

// AIImageAnalysisService 调用多模态模型分析图片。
type AIImageAnalysisService struct {
	client        *aiChatClient
	policy        *bluemonday.Policy
	publicBaseURL string
	logger        *zap.Logger
}

func NewAIImageAnalysisService(settings *SystemSettingService, logger *zap.Logger) *AIImageAnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := newAIChatClient(settings, defaultOpenAIAnalysisModel, defaultDeepSeekAnalysisModel)
	client.SetLogger(logger)
	return &AIImageAnalysisService{
		client: client,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}
}

// SetPublicBaseURL 设置站点地址，用于把 /static/... 这类相对路径补全为模型可访问的绝对地址。
func (s *AIImageAnalysisService) SetPublicBaseURL(base string) {
	s.publicBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

func (s *AIImageAnalysisService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

func (s *AIImageAnalysisService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

func (s *AIImageAnalysisService) SetRateLimiter(limiter *rate.Limiter) {
	s.client.SetRateLimiter(limiter)
}

func (s *AIImageAnalysisService) Analyze(ctx context.Context, imageURL string, kind ImageAnalysisKind) (string, error) {
	spec, ok := analysisPrompts[kind]
	if !ok {
		return "", fmt.Errorf("unsupported analysis kind %q", kind)
	}
	target := s.absoluteURL(imageURL)
	if target == "" {
		return "", fmt.Errorf("image url is required")
	}

	logAIExchange(s.logger, "ANALYZE", string(kind), target)
	result, err := s.client.call(ctx, aiChatRequest{
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   spec.prompt,
		ImageURL:     target,
		MaxTokens:    spec.maxTokens,
		Temperature:  defaultAnalysisTemperature,
	})
	if err != nil {
		return "", err
	}

	text := trimWrappingQuotes(html.UnescapeString(s.policy.Sanitize(result.Content)))
	logAIExchange(s.logger, "ANALYZE", string(kind)+" response", text)
	return text, nil
}

func (s *AIImageAnalysisService) absoluteURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") || strings.HasPrefix(trimmed, "data:") {
		return trimmed
	}
	if s.publicBaseURL == "" {
		return trimmed
	}
	return s.publicBaseURL + "/" + strings.TrimLeft(trimmed, "/")
}
