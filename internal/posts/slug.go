package posts

import (
	"strings"

	"github.com/gosimple/slug"
)

// Slugifier derives URL-safe identifiers from titles.
type Slugifier struct {
	// Lang selects language-specific substitutions, e.g. "en" turns "&" into "and".
	Lang string
}

// Make lowercases title, collapses every run of non-alphanumerics into a
// single hyphen and trims hyphens from both ends.
func (s Slugifier) Make(title string) string {
	lang := s.Lang
	if lang == "" {
		lang = "en"
	}
	return slug.MakeLang(strings.ReplaceAll(title, "_", " "), lang)
}
