package api

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

// LangParam is the query parameter that selects the collation language.
const LangParam = "lang"

// languageResolver picks the collation for a request: the lang query
// parameter first, then Accept-Language, then the configured default.
type languageResolver struct {
	fallback language.Tag
}

func newLanguageResolver(fallback language.Tag) *languageResolver {
	return &languageResolver{fallback: fallback}
}

func (l *languageResolver) resolve(r *http.Request) language.Tag {
	if raw := strings.TrimSpace(r.URL.Query().Get(LangParam)); raw != "" {
		if tag, err := language.Parse(raw); err == nil {
			return tag
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			return tags[0]
		}
	}
	return l.fallback
}
