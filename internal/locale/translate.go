package locale

// Pick returns the text matching the request language, falling back to the other
// translation and finally to the untyped base value.
func Pick(language, english, chinese, base string) string {
	primary, secondary := chinese, english
	if NormalizeLanguage(language) == LanguageEnglish {
		primary, secondary = english, chinese
	}
	switch {
	case primary != "":
		return primary
	case secondary != "":
		return secondary
	default:
		return base
	}
}
