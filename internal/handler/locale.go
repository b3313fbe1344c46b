package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lensfolio/internal/locale"
)

const (
	localeContextKey     = "__request_locale"
	languageCookieName   = "lf_lang"
	languageCookieMaxAge = 365 * 24 * 60 * 60
)

var countryHeaderCandidates = []string{
	"CF-IPCountry",
	"X-Geo-Country",
	"X-Forwarded-Country",
	"X-Country-Code",
}

// languageResolver 返回识别出的语言；persist 为 true 时写回语言 cookie。
type languageResolver func(c *gin.Context) (language string, persist bool)

// 按优先级排列：显式 ?lang= 参数、cookie、CDN 国家头、Accept-Language。
var languageResolvers = []languageResolver{
	func(c *gin.Context) (string, bool) {
		return locale.NormalizeLanguage(c.Query("lang")), true
	},
	func(c *gin.Context) (string, bool) {
		return readLanguageCookie(c), false
	},
	func(c *gin.Context) (string, bool) {
		if country := readCountryHeader(c); country != "" {
			return locale.LanguageFromCountryCode(country), false
		}
		return "", false
	},
	func(c *gin.Context) (string, bool) {
		return locale.LanguageFromAcceptLanguage(c.GetHeader("Accept-Language")), false
	},
}

// LocaleMiddleware 解析请求语言，写入 Content-Language 与 Vary 以便缓存按语言区分。
func (a *API) LocaleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		pref := a.requestLocale(c)
		if pref.HTMLLang != "" {
			c.Header("Content-Language", pref.HTMLLang)
		}
		vary := append([]string{"Accept-Language"}, countryHeaderCandidates...)
		if readLanguageCookie(c) != "" || c.Query("lang") != "" {
			vary = append(vary, "Cookie")
		}
		appendVaryHeader(c, vary...)
		c.Next()
	}
}

func (a *API) requestLocale(c *gin.Context) locale.Preference {
	if cached, ok := c.Get(localeContextKey); ok {
		if pref, ok := cached.(locale.Preference); ok {
			return pref
		}
	}

	language := locale.LanguageChinese
	for _, resolve := range languageResolvers {
		resolved, persist := resolve(c)
		if resolved == "" {
			continue
		}
		language = resolved
		if persist {
			a.persistLanguage(c, language)
		}
		break
	}

	pref := locale.PreferenceForLanguage(language)
	c.Set(localeContextKey, pref)
	return pref
}

func readLanguageCookie(c *gin.Context) string {
	value, err := c.Cookie(languageCookieName)
	if err != nil {
		return ""
	}
	return locale.NormalizeLanguage(value)
}

func (a *API) persistLanguage(c *gin.Context, language string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     languageCookieName,
		Value:    language,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.detectScheme(c) == "https",
		MaxAge:   languageCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

// detectScheme 优先读取反向代理传递的协议头。
func (a *API) detectScheme(c *gin.Context) string {
	if forwarded := firstToken(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
		return strings.ToLower(forwarded)
	}
	if c.Request != nil && c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

func readCountryHeader(c *gin.Context) string {
	for _, header := range countryHeaderCandidates {
		if country := firstToken(c.GetHeader(header)); country != "" {
			return country
		}
	}
	return ""
}

// firstToken 返回逗号分隔头部值中的第一个非空项。
func firstToken(value string) string {
	head, _, _ := strings.Cut(value, ",")
	return strings.TrimSpace(head)
}

// appendVaryHeader 合并已有的 Vary 值并去重，保留首次出现的顺序。
func appendVaryHeader(c *gin.Context, headers ...string) {
	existing := strings.Split(c.Writer.Header().Get("Vary"), ",")
	seen := make(map[string]bool, len(existing)+len(headers))
	merged := make([]string, 0, len(existing)+len(headers))
	for _, token := range append(existing, headers...) {
		token = strings.TrimSpace(token)
		if token == "" || seen[token] {
			continue
		}
		seen[token] = true
		merged = append(merged, token)
	}
	if len(merged) > 0 {
		c.Header("Vary", strings.Join(merged, ", "))
	}
}
