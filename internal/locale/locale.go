// Package locale matches request languages against the configured site languages.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

// Preference describes the language chosen for a request.
type Preference struct {
	Language string
	HTMLLang string
}

// Resolver picks one of the supported languages for a request hint.
type Resolver struct {
	defaultLanguage string
	supported       []string
	matcher         language.Matcher
}

// NewResolver creates a Resolver. The default language is always supported
// and is the fallback of every lookup.
func NewResolver(defaultLanguage string, supported []string) *Resolver {
	defaultLanguage = strings.ToLower(strings.TrimSpace(defaultLanguage))
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	langs := []string{defaultLanguage}
	for _, lang := range supported {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" || contains(langs, lang) {
			continue
		}
		if _, err := language.Parse(lang); err != nil {
			continue
		}
		langs = append(langs, lang)
	}

	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		tags = append(tags, language.Make(lang))
	}
	return &Resolver{
		defaultLanguage: defaultLanguage,
		supported:       langs,
		matcher:         language.NewMatcher(tags),
	}
}

// Default returns the fallback language.
func (r *Resolver) Default() string {
	return r.defaultLanguage
}

// Supported returns the supported languages, default first.
func (r *Resolver) Supported() []string {
	return append([]string(nil), r.supported...)
}

// Normalize maps a language tag such as "fr-CA" to a supported language,
// returning "" when nothing supported is close enough.
func (r *Resolver) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return ""
	}
	_, index, confidence := r.matcher.Match(tag)
	if confidence == language.No {
		return ""
	}
	return r.supported[index]
}

// FromAcceptLanguage picks the best supported language of an Accept-Language header.
func (r *Resolver) FromAcceptLanguage(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	_, index, confidence := r.matcher.Match(tags...)
	if confidence == language.No {
		return ""
	}
	return r.supported[index]
}

// Resolve applies the lookup order explicit override, cookie, Accept-Language, default.
func (r *Resolver) Resolve(query, cookie, acceptLanguage string) string {
	if lang := r.Normalize(query); lang != "" {
		return lang
	}
	if lang := r.Normalize(cookie); lang != "" {
		return lang
	}
	if lang := r.FromAcceptLanguage(acceptLanguage); lang != "" {
		return lang
	}
	return r.defaultLanguage
}

// PreferenceFor returns the Preference of a supported language.
func (r *Resolver) PreferenceFor(lang string) Preference {
	if normalized := r.Normalize(lang); normalized != "" {
		lang = normalized
	} else {
		lang = r.defaultLanguage
	}
	return Preference{Language: lang, HTMLLang: language.Make(lang).String()}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
