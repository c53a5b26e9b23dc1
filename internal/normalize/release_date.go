package normalize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

var yearSuffix = regexp.MustCompile(`\s*г\.\s*$`)

// months maps the first three letters of a month name to its number.
var months = map[string]time.Month{
	"янв": time.January,
	"фев": time.February,
	"мар": time.March,
	"апр": time.April,
	"мая": time.May,
	"май": time.May,
	"июн": time.June,
	"июл": time.July,
	"авг": time.August,
	"сен": time.September,
	"окт": time.October,
	"ноя": time.November,
	"дек": time.December,
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

var (
	errTokenCount = errors.New("expected day, month and year")
	errMonth      = errors.New("unknown month")
	errDay        = errors.New("invalid day")
	errYear       = errors.New("invalid year")
)

// ParseReleaseDate parses storefront dates such as "3 июл. 2020",
// "12 мая 2021 г.", "3 Jul, 2020" and "Jul 3, 2020". Anything that does not
// split into exactly three tokens is a *catalog.ParseError.
func ParseReleaseDate(raw string) (catalog.ReleaseDate, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = yearSuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ",", " ")
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return catalog.ReleaseDate{}, parseErr(raw, errTokenCount)
	}

	dayToken, monthToken := parts[0], parts[1]
	if !isDigits(dayToken) {
		dayToken, monthToken = parts[1], parts[0]
	}

	month, ok := months[firstRunes(monthToken, 3)]
	if !ok {
		return catalog.ReleaseDate{}, parseErr(raw, errMonth)
	}
	day, err := strconv.Atoi(dayToken)
	if err != nil || day < 1 || day > 31 {
		return catalog.ReleaseDate{}, parseErr(raw, errDay)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 1 {
		return catalog.ReleaseDate{}, parseErr(raw, errYear)
	}

	date := catalog.ReleaseDate{Year: year, Month: month, Day: day}
	if date.Time().Day() != day {
		return catalog.ReleaseDate{}, parseErr(raw, errDay)
	}
	return date, nil
}

func parseErr(raw string, err error) error {
	return &catalog.ParseError{Field: "release_date", Input: raw, Err: err}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}
