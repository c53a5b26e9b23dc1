package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

func TestParseReleaseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want catalog.ReleaseDate
	}{
		{"3 июл. 2020", catalog.ReleaseDate{Year: 2020, Month: time.July, Day: 3}},
		{"12 мая 2021 г.", catalog.ReleaseDate{Year: 2021, Month: time.May, Day: 12}},
		{"1 май 1999", catalog.ReleaseDate{Year: 1999, Month: time.May, Day: 1}},
		{"  28 ФЕВ. 2016 г. ", catalog.ReleaseDate{Year: 2016, Month: time.February, Day: 28}},
		{"3 Jul, 2020", catalog.ReleaseDate{Year: 2020, Month: time.July, Day: 3}},
		{"Jul 3, 2020", catalog.ReleaseDate{Year: 2020, Month: time.July, Day: 3}},
		{"9 September 2013", catalog.ReleaseDate{Year: 2013, Month: time.September, Day: 9}},
	}
	for _, tc := range tests {
		got, err := ParseReleaseDate(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseReleaseDateFailures(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"",
		"2020",
		"июль 2020",
		"Q3 2020",
		"1 2 3 4",
		"3 foo 2020",
		"0 янв 2020",
		"31 фев 2020",
		"3 июл year",
	} {
		_, err := ParseReleaseDate(in)
		require.ErrorIs(t, err, catalog.ErrParse, "input %q", in)
		var pe *catalog.ParseError
		require.ErrorAs(t, err, &pe)
		require.Equal(t, in, pe.Input)
	}
}
