package service

import (
	"context"
	"strings"

	"github.com/lensfolio/internal/db"
	"github.com/lensfolio/internal/locale"
	"go.uber.org/zap"
)

// FieldState 是单个文本字段的双语状态。Base 为不带语言标记的原文。
type FieldState struct {
	Base  string
	EN    string
	ZH    string
	Touch db.TouchState
}

func (f FieldState) touched() bool {
	return f.Touch == db.TouchAuthoredEnglish
}

// BilingualTexts 汇总一个作品集或图片的三个可翻译字段。
type BilingualTexts struct {
	Title       FieldState
	Subtitle    FieldState
	Description FieldState
}

func (b *BilingualTexts) fields() []*FieldState {
	return []*FieldState{&b.Title, &b.Subtitle, &b.Description}
}

// AutofillEngine 决定每个字段的中英文是直接复制、机器翻译还是保持不变。
type AutofillEngine struct {
	translator Translator
	logger     *zap.Logger
}

func NewAutofillEngine(translator Translator, logger *zap.Logger) *AutofillEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutofillEngine{translator: translator, logger: logger}
}

// FillTexts 依次处理标题、副标题与描述，返回是否有字段发生变化。
func (e *AutofillEngine) FillTexts(ctx context.Context, texts *BilingualTexts) bool {
	changed := false
	for _, field := range texts.fields() {
		if e.FillField(ctx, field) {
			changed = true
		}
	}
	return changed
}

// FillField 按以下顺序处理一个字段：
//  1. Base 为空：清空 ZH，未 touched 时清空 EN。
//  2. EN、ZH 均为空：Base 含 CJK 时 ZH 取 Base 并翻译出 EN；否则 EN 取 Base（标记为人工撰写）并翻译出 ZH。
//  3. 仅 ZH 有值且未 touched：由 ZH 翻译 EN。
//  4. 仅 EN 有值：由 EN 翻译 ZH。
//  5. 仍有一侧为空时再补译一次。
//
// 翻译失败的字段保持为空。
func (e *AutofillEngine) FillField(ctx context.Context, field *FieldState) bool {
	before := *field
	base := strings.TrimSpace(field.Base)
	en := strings.TrimSpace(field.EN)
	zh := strings.TrimSpace(field.ZH)
	touched := field.touched()

	if base == "" {
		field.ZH = ""
		if !touched {
			field.EN = ""
		}
		return *field != before
	}

	switch {
	case en == "" && zh == "":
		if locale.ContainsCJK(base) {
			zh = base
			if !touched {
				en = e.translate(ctx, base, locale.LanguageEnglish)
			}
		} else {
			if !touched {
				en = base
				field.Touch = db.TouchAuthoredEnglish
				touched = true
			}
			zh = e.translate(ctx, base, locale.LanguageChinese)
		}
	case en == "" && zh != "" && !touched:
		en = e.translate(ctx, zh, locale.LanguageEnglish)
	case zh == "" && en != "":
		zh = e.translate(ctx, en, locale.LanguageChinese)
	}

	if en == "" && !touched && zh != "" {
		en = e.translate(ctx, zh, locale.LanguageEnglish)
	}
	if zh == "" && en != "" {
		zh = e.translate(ctx, en, locale.LanguageChinese)
	}

	field.EN = en
	field.ZH = zh
	if field.Touch == "" {
		field.Touch = db.TouchUntouched
	}
	return *field != before
}

func (e *AutofillEngine) translate(ctx context.Context, text, target string) string {
	if e.translator == nil {
		return ""
	}
	translated, err := e.translator.Translate(ctx, text, "auto", target)
	if err != nil {
		e.logger.Warn("autofill translation failed", zap.String("target", target), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(translated)
}
