package normalize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

var (
	htmlTag     = regexp.MustCompile(`<[^>]*>`)
	audioLegend = regexp.MustCompile(`(?is)\*?\s*(?:languages with full audio support|языки с полной озвучкой).*$`)
)

// ParseLanguages parses a supported-languages string into entries sorted by
// name. A trailing asterisk marks full audio support; the explanatory legend
// is removed before splitting on commas.
func ParseLanguages(raw string) []catalog.Language {
	if strings.TrimSpace(raw) == "" {
		return []catalog.Language{}
	}
	s := htmlTag.ReplaceAllString(raw, "")
	s = audioLegend.ReplaceAllString(s, "")

	byName := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fullAudio := strings.HasSuffix(part, "*")
		name := strings.TrimSpace(strings.TrimRight(part, "*"))
		if name == "" {
			continue
		}
		byName[name] = fullAudio
	}

	out := make([]catalog.Language, 0, len(byName))
	for name, fullAudio := range byName {
		out = append(out, catalog.Language{Name: name, FullAudio: fullAudio})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
