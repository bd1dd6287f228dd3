package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const DefaultLanguage = "en-US"

// BaseCode returns the primary subtag of a language tag, "th" for "th-TH".
func BaseCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		code, _, _ := strings.Cut(lang, "-")
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}

func IsThai(lang string) bool {
	return BaseCode(lang) == "th"
}

// LanguageName returns the English name of a language tag, falling back to
// the tag itself when it cannot be parsed.
func LanguageName(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	name := display.English.Languages().Name(language.Make(base.String()))
	if name == "" {
		return lang
	}
	return name
}

// LanguageInstruction tells a model which language to write in.
func LanguageInstruction(lang string) string {
	if IsThai(lang) {
		return "Write the result in Thai (ภาษาไทย)."
	}
	return fmt.Sprintf("Write the result in %s.", LanguageName(lang))
}

// NormalizeLanguage maps an empty tag to the default language.
func NormalizeLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return DefaultLanguage
	}
	return lang
}
