package service

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const maxAILogSnippetRunes = 1024

// logAIExchange 用于输出 AI 请求与响应的关键信息，方便排查模型行为。
func logAIExchange(logger *zap.Logger, kind, phase, content string) {
	if logger == nil {
		return
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		logger.Debug("ai exchange", zap.String("kind", kind), zap.String("phase", phase), zap.Bool("empty", true))
		return
	}

	runeCount := utf8.RuneCountInString(trimmed)
	snippet := trimmed
	if runeCount > maxAILogSnippetRunes {
		snippet = string([]rune(trimmed)[:maxAILogSnippetRunes]) + "…(truncated)"
	}
	logger.Debug("ai exchange",
		zap.String("kind", kind),
		zap.String("phase", phase),
		zap.Int("runes", runeCount),
		zap.String("content", snippet),
	)
}
