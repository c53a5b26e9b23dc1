package labels

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
	collyfetcher "github.com/JakeFAU/storefront-ingest/internal/fetcher/colly"
)

const itemPage = `<html><body>
<div class="glance_tags popular_tags">
  <a href="/tags/ru/RPG/" class="app_tag" style="display: none;">
      Ролевая игра  </a>
  <a href="/tags/ru/Indie/" class="app_tag">Инди</a>
  <a class="app_tag add_button">  </a>
  <a class="other">Not a tag</a>
</div></body></html>`

func newTestExtractor(t *testing.T) (*Extractor, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	fetcher := collyfetcher.New(collyfetcher.Config{Timeout: time.Second, Transport: transport}, nil)
	return New(Config{BaseURL: "https://store.test", Headers: http.Header{"User-Agent": {"Mozilla/5.0"}}}, fetcher), transport
}

func TestFetchLabelsSendsAgeGateCookies(t *testing.T) {
	t.Parallel()

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponderWithQuery(http.MethodGet, "https://store.test/app/620", "l=russian",
		func(req *http.Request) (*http.Response, error) {
			birth, err := req.Cookie("birthtime")
			if err != nil || birth.Value != "568022401" {
				return httpmock.NewStringResponse(http.StatusOK, "<html>age gate</html>"), nil
			}
			if _, err := req.Cookie("lastagecheckage"); err != nil {
				return httpmock.NewStringResponse(http.StatusOK, "<html>age gate</html>"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, itemPage), nil
		})

	tags, err := extractor.FetchLabels(context.Background(), 620)
	require.NoError(t, err)
	require.Equal(t, []string{"Ролевая игра", "Инди"}, tags)
}

func TestFetchLabelsNonSuccessIsEmpty(t *testing.T) {
	t.Parallel()

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder(http.MethodGet, "https://store.test/app/1",
		httpmock.NewStringResponder(http.StatusNotFound, itemPage))

	tags, err := extractor.FetchLabels(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, tags)
	require.Empty(t, tags)
}

func TestFetchLabelsNetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder(http.MethodGet, "https://store.test/app/1",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	_, err := extractor.FetchLabels(context.Background(), 1)
	require.ErrorIs(t, err, catalog.ErrTransient)
}

func TestParseWithoutTags(t *testing.T) {
	t.Parallel()

	tags, err := Parse([]byte("<html><body><p>nothing</p></body></html>"))
	require.NoError(t, err)
	require.Empty(t, tags)
}
