package storeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type described struct {
	Description string `json:"description"`
}

type priceOverview struct {
	Final int64 `json:"final"`
}

type releaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

type appData struct {
	Type               string         `json:"type"`
	Name               string         `json:"name"`
	PriceOverview      *priceOverview `json:"price_overview"`
	ShortDescription   *string        `json:"short_description"`
	HeaderImage        *string        `json:"header_image"`
	ReleaseDate        releaseDate    `json:"release_date"`
	Developers         []string       `json:"developers"`
	Publishers         []string       `json:"publishers"`
	Categories         []described    `json:"categories"`
	Genres             []described    `json:"genres"`
	SupportedLanguages string         `json:"supported_languages"`
}

func decodeRecord(id int64, locale string, body []byte) (catalog.Record, error) {
	var keyed map[string]envelope
	if err := json.Unmarshal(body, &keyed); err != nil {
		return catalog.Record{}, fmt.Errorf("decode appdetails: %w", err)
	}
	record := catalog.Record{ID: id, Locale: locale}
	env, ok := keyed[strconv.FormatInt(id, 10)]
	if !ok {
		return record, nil
	}
	record.Exists = env.Success

	var data appData
	if hasObject(env.Data) {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return catalog.Record{}, fmt.Errorf("decode appdetails data: %w", err)
		}
		record.Raw = append(json.RawMessage(nil), env.Data...)
	}
	record.Kind = data.Type
	record.Name = data.Name
	if !record.Exists {
		return record, nil
	}

	attrs := catalog.Attributes{
		ShortDescription:   data.ShortDescription,
		HeaderImage:        data.HeaderImage,
		ReleaseDate:        catalog.ReleaseDescriptor{ComingSoon: data.ReleaseDate.ComingSoon, Date: data.ReleaseDate.Date},
		Developers:         data.Developers,
		Publishers:         data.Publishers,
		Categories:         descriptions(data.Categories),
		Genres:             descriptions(data.Genres),
		SupportedLanguages: data.SupportedLanguages,
	}
	if data.PriceOverview != nil {
		cents := data.PriceOverview.Final
		attrs.PriceCents = &cents
	}
	record.Attributes = attrs
	return record, nil
}

func hasObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func descriptions(in []described) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if v := strings.TrimSpace(d.Description); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type reviewsEnvelope struct {
	QuerySummary *querySummary `json:"query_summary"`
}

type querySummary struct {
	TotalReviews    int64           `json:"total_reviews"`
	TotalPositive   int64           `json:"total_positive"`
	TotalNegative   int64           `json:"total_negative"`
	ReviewScore     json.RawMessage `json:"review_score"`
	ReviewScoreDesc json.RawMessage `json:"review_score_desc"`
}

func decodeReviews(body []byte, scoreField string) (catalog.ReviewsSummary, error) {
	var env reviewsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return catalog.ReviewsSummary{}, fmt.Errorf("decode appreviews: %w", err)
	}
	if env.QuerySummary == nil {
		return catalog.ReviewsSummary{}, nil
	}
	s := env.QuerySummary
	raw := s.ReviewScore
	if scoreField == ScoreDescriptive {
		raw = s.ReviewScoreDesc
	}
	return catalog.ReviewsSummary{
		Total:    s.TotalReviews,
		Positive: s.TotalPositive,
		Negative: s.TotalNegative,
		Score:    opaqueScore(raw),
	}, nil
}

// opaqueScore renders a JSON string or number as text; null and absent are nil.
func opaqueScore(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return &text
	}
	text = string(trimmed)
	return &text
}
