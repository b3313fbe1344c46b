package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrVisionUnsupported 表示当前 AI 平台不支持图片输入。
var ErrVisionUnsupported = errors.New("ai provider does not support image input")

const (
	defaultAIChatTimeout = 5 * time.Minute
	defaultVisionModel   = "gpt-4o-mini"
)

type chatImageURL struct {
	URL string `json:"url"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

// chatMessage 的 Content 为纯文本字符串或 []chatContentPart。
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// aiChatRequest 中 ImageURL 非空时以多模态消息发送，并改用视觉模型。
type aiChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	ImageURL     string
	MaxTokens    int
	Temperature  float64
}

type aiChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

type aiChatClient struct {
	settings             *SystemSettingService
	http                 httpDoer
	limiter              *rate.Limiter
	logger               *zap.Logger
	openAIBaseURL        string
	openAIModel          string
	deepSeekBaseURL      string
	deepSeekModel        string
	defaultOpenAIModel   string
	defaultDeepSeekModel string
}

func newAIChatClient(settings *SystemSettingService, defaultOpenAIModel, defaultDeepSeekModel string) *aiChatClient {
	return &aiChatClient{
		settings:             settings,
		http:                 &http.Client{Timeout: defaultAIChatTimeout},
		logger:               zap.NewNop(),
		openAIBaseURL:        "https://api.openai.com/v1",
		openAIModel:          strings.TrimSpace(defaultOpenAIModel),
		deepSeekBaseURL:      "https://api.deepseek.com/v1",
		deepSeekModel:        strings.TrimSpace(defaultDeepSeekModel),
		defaultOpenAIModel:   strings.TrimSpace(defaultOpenAIModel),
		defaultDeepSeekModel: strings.TrimSpace(defaultDeepSeekModel),
	}
}

func (c *aiChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		c.http = &http.Client{Timeout: defaultAIChatTimeout}
		return
	}
	c.http = client
}

// SetRateLimiter 设置调用 AI 平台前需要等待的限流器，多个服务可共享同一个实例。
func (c *aiChatClient) SetRateLimiter(limiter *rate.Limiter) {
	c.limiter = limiter
}

func (c *aiChatClient) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

func (c *aiChatClient) SetOpenAIBaseURL(base string) {
	c.openAIBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

func (c *aiChatClient) SetDeepSeekBaseURL(base string) {
	c.deepSeekBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
}

func (c *aiChatClient) SetOpenAIModel(model string) {
	model = strings.TrimSpace(model)
	if model == "" {
		return
	}
	c.openAIModel = model
}

func (c *aiChatClient) SetDeepSeekModel(model string) {
	model = strings.TrimSpace(model)
	if model == "" {
		return
	}
	c.deepSeekModel = model
}

// call 读取当前系统设置后发起一次对话请求。
func (c *aiChatClient) call(ctx context.Context, req aiChatRequest) (aiChatResponse, error) {
	if c.settings == nil {
		return aiChatResponse{}, ErrAIAPIKeyMissing
	}
	settings, err := c.settings.GetSettings(ctx)
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("读取系统设置失败: %w", err)
	}
	return c.callWithSettings(ctx, settings, req)
}

func (c *aiChatClient) callWithSettings(ctx context.Context, settings SystemSettings, req aiChatRequest) (aiChatResponse, error) {
	endpoint := resolveAIEndpoint(settings.AIProvider, c.openAIBaseURL, c.deepSeekBaseURL)
	base, label := endpoint.base, endpoint.label
	withImage := strings.TrimSpace(req.ImageURL) != ""

	var apiKey, model string
	switch endpoint.provider {
	case AIProviderDeepSeek:
		if withImage {
			return aiChatResponse{}, ErrVisionUnsupported
		}
		apiKey = strings.TrimSpace(settings.DeepSeekAPIKey)
		model = firstNonEmpty(settings.TextModel, c.deepSeekModel, c.defaultDeepSeekModel)
	default:
		apiKey = strings.TrimSpace(settings.OpenAIAPIKey)
		model = firstNonEmpty(settings.TextModel, c.openAIModel, c.defaultOpenAIModel)
		if withImage {
			model = firstNonEmpty(settings.VisionModel, defaultVisionModel)
		}
	}

	if apiKey == "" {
		return aiChatResponse{}, ErrAIAPIKeyMissing
	}

	client := c.http
	if client == nil {
		client = http.DefaultClient
	}

	maxTokens := req.MaxTokens
	if maxTokens < 0 {
		maxTokens = 0
	}

	var userContent any = req.UserPrompt
	if withImage {
		userContent = []chatContentPart{
			{Type: "text", Text: req.UserPrompt},
			{Type: "image_url", ImageURL: &chatImageURL{URL: strings.TrimSpace(req.ImageURL)}},
		}
	}

	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.SystemPrompt)},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("构造请求失败: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return aiChatResponse{}, fmt.Errorf("等待 %s 限流失败: %w", label, err)
		}
	}

	chatURL := strings.TrimRight(base, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatURL, bytes.NewReader(body))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("创建 %s 请求失败: %w", label, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "lensfolio-ai/1.0")

	resp, err := client.Do(httpReq)
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("请求 %s 接口失败: %w", label, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("读取 %s 响应失败: %w", label, err)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return aiChatResponse{}, fmt.Errorf("解析 %s 响应失败: %w", label, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		errMsg := strings.TrimSpace(completion.Error.Message)
		if errMsg == "" {
			errMsg = strings.TrimSpace(string(respBody))
		}
		if errMsg == "" {
			errMsg = resp.Status
		}
		return aiChatResponse{}, fmt.Errorf("%s 接口返回错误：%s", label, errMsg)
	}

	if len(completion.Choices) == 0 {
		return aiChatResponse{}, fmt.Errorf("%s 接口未返回结果", label)
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	return aiChatResponse{
		Content:          content,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
