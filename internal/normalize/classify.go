package normalize

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

// Classify decides the outcome of an identifier from its primary record.
func Classify(primary catalog.Record) catalog.Outcome {
	switch {
	case !primary.Exists:
		return catalog.OutcomeNonexistent
	case primary.Kind != catalog.KindGame:
		return catalog.OutcomeOutOfScope
	default:
		return catalog.OutcomeGame
	}
}

// NeedsEstimate reports whether a game should be looked up in the estimate
// service. Unreleased games are skipped.
func NeedsEstimate(primary catalog.Record) bool {
	return Classify(primary) == catalog.OutcomeGame && !primary.Attributes.ReleaseDate.ComingSoon
}

// Input gathers everything fetched for one identifier.
type Input struct {
	AppID     int64
	Primary   catalog.Record
	Localized catalog.Record
	Tags      []string
	Reviews   catalog.ReviewsSummary
}

// Normalizer builds plans for a fixed storage layout.
type Normalizer struct {
	layout catalog.Layout
}

// New returns a Normalizer for layout, defaulting to the normalized layout.
func New(layout catalog.Layout) *Normalizer {
	if _, ok := catalog.ParseLayout(string(layout)); !ok {
		layout = catalog.LayoutNormalized
	}
	return &Normalizer{layout: layout}
}

// Layout returns the configured layout.
func (n *Normalizer) Layout() catalog.Layout {
	return n.layout
}

// Normalize turns in into a Plan. The estimate of a game plan is left
// unavailable; callers attach it after a lookup.
func (n *Normalizer) Normalize(in Input) (catalog.Plan, error) {
	outcome := Classify(in.Primary)
	switch outcome {
	case catalog.OutcomeNonexistent:
		return catalog.Plan{
			AppID:   in.AppID,
			Outcome: outcome,
			Item: &catalog.OutOfScopeItem{
				AppID: in.AppID,
				Name:  optional(in.Primary.Name),
				Kind:  optional(in.Primary.Kind),
			},
		}, nil
	case catalog.OutcomeOutOfScope:
		snapshot := in.Primary.Raw
		if len(snapshot) == 0 || !json.Valid(snapshot) {
			snapshot = json.RawMessage("{}")
		}
		return catalog.Plan{
			AppID:   in.AppID,
			Outcome: outcome,
			Item: &catalog.OutOfScopeItem{
				AppID:    in.AppID,
				Name:     optional(in.Primary.Name),
				Kind:     optional(in.Primary.Kind),
				Snapshot: append(json.RawMessage(nil), snapshot...),
			},
		}, nil
	}

	game, err := n.game(in)
	if err != nil {
		return catalog.Plan{}, err
	}
	return catalog.Plan{AppID: in.AppID, Outcome: outcome, Game: &game}, nil
}

func (n *Normalizer) game(in Input) (catalog.Game, error) {
	primary := in.Primary.Attributes
	localized := in.Localized.Attributes

	var release *catalog.ReleaseDate
	if !primary.ReleaseDate.ComingSoon {
		parsed, err := ParseReleaseDate(localized.ReleaseDate.Date)
		if err != nil {
			return catalog.Game{}, err
		}
		release = &parsed
	}

	return catalog.Game{
		AppID:            in.AppID,
		Name:             in.Primary.Name,
		PriceCents:       primary.PriceCents,
		ShortDescription: localized.ShortDescription,
		HeaderImage:      primary.HeaderImage,
		ReleaseDate:      release,
		ReviewsTotal:     in.Reviews.Total,
		ReviewsPositive:  in.Reviews.Positive,
		ReviewsNegative:  in.Reviews.Negative,
		ReviewPercent:    ReviewPercent(in.Reviews.Positive, in.Reviews.Total),
		ReviewScore:      in.Reviews.Score,
		Estimate:         catalog.Unavailable,
		Layout:           n.layout,
		Tags:             uniqueStrings(in.Tags),
		Genres:           uniqueStrings(primary.Genres),
		Categories:       uniqueStrings(primary.Categories),
		Developers:       uniqueStrings(primary.Developers),
		Publishers:       uniqueStrings(primary.Publishers),
		Languages:        ParseLanguages(primary.SupportedLanguages),
	}, nil
}

// ReviewPercent is round(100*positive/total) clamped to 0..100, or nil when
// there are no reviews.
func ReviewPercent(positive, total int64) *int {
	if total <= 0 {
		return nil
	}
	pct := int(math.Round(100 * float64(positive) / float64(total)))
	pct = min(max(pct, 0), 100)
	return &pct
}

// uniqueStrings trims values and drops blanks and exact duplicates, keeping
// first-seen order.
func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
