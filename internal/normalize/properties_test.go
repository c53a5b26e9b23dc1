package normalize

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var labelPool = []string{"Action", "RPG", "Indie", " RPG", "", "Инди"}

var ruMonthNames = []string{"янв.", "фев.", "мар.", "апр.", "мая", "июн.", "июл.", "авг.", "сен.", "окт.", "ноя.", "дек."}

func TestNormalizationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("review percent is bounded and omitted without reviews", prop.ForAll(
		func(positive, total int64) bool {
			pct := ReviewPercent(positive, total)
			if total == 0 {
				return pct == nil
			}
			return pct != nil && *pct >= 0 && *pct <= 100
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.Property("dedup is idempotent", prop.ForAll(
		func(values []string) bool {
			once := uniqueStrings(values)
			twice := uniqueStrings(once)
			return strings.Join(once, "\x00") == strings.Join(twice, "\x00")
		},
		gen.SliceOf(gen.IntRange(0, len(labelPool)-1).Map(func(i int) string { return labelPool[i] })),
	))

	properties.Property("localized dates round trip", prop.ForAll(
		func(offset int) bool {
			d := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
			raw := fmt.Sprintf("%d %s %d г.", d.Day(), ruMonthNames[d.Month()-1], d.Year())
			got, err := ParseReleaseDate(raw)
			return err == nil && got.Year == d.Year() && got.Month == d.Month() && got.Day == d.Day()
		},
		gen.IntRange(0, 20000),
	))

	properties.Property("full audio markers survive parsing", prop.ForAll(
		func(flags []bool) bool {
			parts := make([]string, 0, len(flags))
			for i, full := range flags {
				name := fmt.Sprintf("Lang%03d", i)
				if full {
					name += "*"
				}
				parts = append(parts, name)
			}
			raw := strings.Join(parts, ", ") + "<br>*languages with full audio support"
			langs := ParseLanguages(raw)
			if len(langs) != len(flags) {
				return false
			}
			for i, lang := range langs {
				if lang.Name != fmt.Sprintf("Lang%03d", i) || lang.FullAudio != flags[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
