package catalog

import (
	"encoding/json"
	"time"
)

// KindGame is the upstream type label of in-scope items.
const KindGame = "game"

// Record is one locale's view of a storefront item.
type Record struct {
	ID     int64
	Locale string
	// Exists mirrors the upstream success flag.
	Exists bool
	Kind   string
	Name   string
	// Attributes is the zero value when Exists is false.
	Attributes Attributes
	// Raw is the unmodified data object as returned upstream.
	Raw json.RawMessage
}

// Attributes holds the optional per-locale fields of a Record.
type Attributes struct {
	// PriceCents is nil when the item has no price block.
	PriceCents         *int64
	ShortDescription   *string
	HeaderImage        *string
	ReleaseDate        ReleaseDescriptor
	Developers         []string
	Publishers         []string
	Categories         []string
	Genres             []string
	SupportedLanguages string
}

// ReleaseDescriptor is the raw release date as shipped by the storefront.
type ReleaseDescriptor struct {
	ComingSoon bool
	Date       string
}

// ReviewsSummary aggregates user reviews for an item.
type ReviewsSummary struct {
	Total    int64
	Positive int64
	Negative int64
	// Score is either the numeric score or a descriptive label depending on
	// configuration; nil when upstream omits it.
	Score *string
}

// Estimate holds completion-time estimates in hours.
type Estimate struct {
	MainHours          *float64
	ExtraHours         *float64
	CompletionistHours *float64
	ReferenceID        *int64
}

// Unavailable is the estimate used when no lookup result exists.
var Unavailable = Estimate{}

// Available reports whether any field of the estimate is populated.
func (e Estimate) Available() bool {
	return e.MainHours != nil || e.ExtraHours != nil || e.CompletionistHours != nil || e.ReferenceID != nil
}

// Outcome classifies an identifier.
type Outcome string

// Supported outcomes.
const (
	OutcomeNonexistent Outcome = "nonexistent"
	OutcomeOutOfScope  Outcome = "out_of_scope"
	OutcomeGame        Outcome = "game"
)

// Layout selects how release dates and languages are persisted.
type Layout string

// Supported layouts.
const (
	// LayoutNormalized stores year/month/day columns and a languages join table.
	LayoutNormalized Layout = "normalized"
	// LayoutDenormalized stores a DATE column and a JSON languages document.
	LayoutDenormalized Layout = "denormalized"
)

// ParseLayout validates a configured layout name.
func ParseLayout(s string) (Layout, bool) {
	switch Layout(s) {
	case LayoutNormalized, LayoutDenormalized:
		return Layout(s), true
	default:
		return "", false
	}
}

// Plan is the persistable result of classifying one identifier.
type Plan struct {
	AppID   int64
	Outcome Outcome
	// Item is set for nonexistent and out-of-scope outcomes.
	Item *OutOfScopeItem
	// Game is set for the game outcome.
	Game *Game
}

// OutOfScopeItem is stored in the secondary store.
type OutOfScopeItem struct {
	AppID int64
	Name  *string
	Kind  *string
	// Snapshot is nil for nonexistent identifiers.
	Snapshot json.RawMessage
}

// ReleaseDate is a parsed calendar date; a nil *ReleaseDate means coming soon.
type ReleaseDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Time converts the date to midnight UTC.
func (d ReleaseDate) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Language is one supported language entry.
type Language struct {
	Name      string
	FullAudio bool
}

// Game is the normalized in-scope item.
type Game struct {
	AppID            int64
	Name             string
	PriceCents       *int64
	ShortDescription *string
	HeaderImage      *string
	ReleaseDate      *ReleaseDate
	ReviewsTotal     int64
	ReviewsPositive  int64
	ReviewsNegative  int64
	// ReviewPercent is nil when there are no reviews.
	ReviewPercent *int
	ReviewScore   *string
	Estimate      Estimate
	Layout        Layout

	Tags       []string
	Genres     []string
	Categories []string
	Developers []string
	Publishers []string
	Languages  []Language
}

// CommitNotice is published after an identifier's outcome is committed.
type CommitNotice struct {
	AppID       int64     `json:"appid"`
	Outcome     Outcome   `json:"outcome"`
	CommittedAt time.Time `json:"committed_at"`
}
