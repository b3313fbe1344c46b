package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lensfolio/internal/locale"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrTranslationEmpty 表示翻译结果为空。
var ErrTranslationEmpty = errors.New("translation result is empty")

// Translator 将文本翻译为目标语言；source 为 "auto" 时由模型自行判断。
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

const (
	defaultOpenAITranslationModel   = "gpt-4o-mini"
	defaultDeepSeekTranslationModel = "deepseek-chat"
	defaultTranslationMaxTokens     = 3000
	defaultTranslationTemperature   = 0.2
	maxTranslationChunkRunes        = 2000
)

// AITranslationService 通过大模型完成中英互译，并缓存结果。
type AITranslationService struct {
	client *aiChatClient
	cache  TranslationCache
	logger *zap.Logger
}

func NewAITranslationService(settings *SystemSettingService, cache TranslationCache, logger *zap.Logger) *AITranslationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := newAIChatClient(settings, defaultOpenAITranslationModel, defaultDeepSeekTranslationModel)
	client.SetLogger(logger)
	return &AITranslationService{client: client, cache: cache, logger: logger}
}

// SetHTTPClient 覆盖默认 HTTP 客户端，主要用于测试。
func (s *AITranslationService) SetHTTPClient(client httpDoer) {
	s.client.SetHTTPClient(client)
}

func (s *AITranslationService) SetOpenAIBaseURL(base string) {
	s.client.SetOpenAIBaseURL(base)
}

func (s *AITranslationService) SetDeepSeekBaseURL(base string) {
	s.client.SetDeepSeekBaseURL(base)
}

func (s *AITranslationService) SetRateLimiter(limiter *rate.Limiter) {
	s.client.SetRateLimiter(limiter)
}

func (s *AITranslationService) Translate(ctx context.Context, text, source, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrTranslationEmpty
	}
	target = locale.NormalizeLanguage(target)
	if target == "" {
		return "", fmt.Errorf("unsupported target language")
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = "auto"
	}

	key := translationCacheKey(source, target, text)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("translation cache read failed", zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}

	var b strings.Builder
	for _, chunk := range splitTranslationChunks(text, maxTranslationChunkRunes) {
		translated, err := s.translateChunk(ctx, chunk.text, target)
		if err != nil {
			return "", err
		}
		if b.Len() > 0 {
			b.WriteString(chunk.sep)
		}
		b.WriteString(translated)
	}
	translated := b.String()

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, translated); err != nil {
			s.logger.Warn("translation cache write failed", zap.Error(err))
		}
	}
	return translated, nil
}

func (s *AITranslationService) translateChunk(ctx context.Context, text, target string) (string, error) {
	logAIExchange(s.logger, "TRANSLATE", "prompt", text)
	result, err := s.client.call(ctx, aiChatRequest{
		SystemPrompt: buildTranslationSystemPrompt(target),
		UserPrompt:   text,
		MaxTokens:    defaultTranslationMaxTokens,
		Temperature:  defaultTranslationTemperature,
	})
	if err != nil {
		return "", err
	}

	translated := trimWrappingQuotes(result.Content)
	logAIExchange(s.logger, "TRANSLATE", "response", translated)
	if translated == "" {
		return "", ErrTranslationEmpty
	}
	return translated, nil
}

func buildTranslationSystemPrompt(target string) string {
	language := "Simplified Chinese"
	if target == locale.LanguageEnglish {
		language = "English"
	}
	return "You translate captions for a photography portfolio. Translate the user's text into " + language +
		". Keep proper nouns and place names recognisable, keep line breaks and markdown, and reply with the translation only."
}

type translationChunk struct {
	text string
	sep  string // 与前一段拼接时使用的分隔符
}

// splitTranslationChunks 按空行把长文本切成不超过 limit 个字符的片段；
// 单个段落超长时在句末或空白处继续切分。
func splitTranslationChunks(text string, limit int) []translationChunk {
	var chunks []translationChunk
	var current string
	flush := func() {
		if current != "" {
			chunks = append(chunks, translationChunk{text: current, sep: "\n\n"})
			current = ""
		}
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		size := utf8.RuneCountInString(paragraph)
		if size > limit {
			flush()
			for i, piece := range splitLongParagraph(paragraph, limit) {
				sep := " "
				if i == 0 {
					sep = "\n\n"
				}
				chunks = append(chunks, translationChunk{text: piece, sep: sep})
			}
			continue
		}
		if current != "" && utf8.RuneCountInString(current)+2+size > limit {
			flush()
		}
		if current == "" {
			current = paragraph
		} else {
			current += "\n\n" + paragraph
		}
	}
	flush()
	return chunks
}

func splitLongParagraph(paragraph string, limit int) []string {
	runes := []rune(paragraph)
	var pieces []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if isTranslationBreak(runes[i-1]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			pieces = append(pieces, piece)
		}
		runes = runes[cut:]
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		pieces = append(pieces, piece)
	}
	return pieces
}

func isTranslationBreak(r rune) bool {
	switch r {
	case '。', '！', '？', '；', '.', '!', '?', ';', '\n':
		return true
	}
	return unicode.IsSpace(r)
}

var wrappingQuotes = []struct{ open, close string }{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
	{"「", "」"},
	{"《", "》"},
}

func trimWrappingQuotes(text string) string {
	trimmed := strings.TrimSpace(text)
	for _, pair := range wrappingQuotes {
		if len(trimmed) <= len(pair.open)+len(pair.close) ||
			!strings.HasPrefix(trimmed, pair.open) || !strings.HasSuffix(trimmed, pair.close) {
			continue
		}
		inner := trimmed[len(pair.open) : len(trimmed)-len(pair.close)]
		// "Dawn" and "Dusk" 这类内部仍有引号的文本不是整体包裹
		if strings.Contains(inner, pair.open) || strings.Contains(inner, pair.close) {
			break
		}
		trimmed = strings.TrimSpace(inner)
		break
	}
	return trimmed
}
