package locale

import "strings"

const (
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

// Supported 列出译文表中允许出现的语言，顺序即展示与写入顺序。
var Supported = []string{LanguageEnglish, LanguageChinese}

type Preference struct {
	Language string
	Locale   string
	HTMLLang string
}

// NormalizeLanguage 将 zh-CN / en_US 等写法归一为 zh 或 en，无法识别时返回空串。
func NormalizeLanguage(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "zh") || trimmed == "cn" {
		return LanguageChinese
	}
	if strings.HasPrefix(trimmed, "en") {
		return LanguageEnglish
	}
	return ""
}

// Counterpart 返回另一种受支持的语言。
func Counterpart(language string) string {
	if NormalizeLanguage(language) == LanguageEnglish {
		return LanguageChinese
	}
	return LanguageEnglish
}

func LanguageFromCountryCode(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	switch trimmed {
	case "":
		return ""
	case "CN", "TW", "HK", "MO":
		return LanguageChinese
	default:
		return LanguageEnglish
	}
}

// LanguageFromAcceptLanguage 按 Accept-Language 中出现的先后顺序挑选第一个受支持的语言。
func LanguageFromAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := part
		if idx := strings.Index(tag, ";"); idx >= 0 {
			tag = tag[:idx]
		}
		if normalized := NormalizeLanguage(tag); normalized != "" {
			return normalized
		}
	}
	return ""
}

func PreferenceForLanguage(language string) Preference {
	if NormalizeLanguage(language) == LanguageEnglish {
		return Preference{Language: LanguageEnglish, Locale: "en_US", HTMLLang: "en-US"}
	}
	return Preference{Language: LanguageChinese, Locale: "zh_CN", HTMLLang: "zh-CN"}
}
