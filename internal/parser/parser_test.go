package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newshub.app/internal/model"
)

func TestParseRSS(t *testing.T) {
	raw := `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
	<title>Example</title>
	<link>https://example.org/</link>
	<item>
		<title>First Story</title>
		<link>https://example.org/first</link>
		<description>Something happened.</description>
		<pubDate>Tue, 05 Aug 2025 10:00:00 GMT</pubDate>
		<enclosure url="https://example.org/first.jpg" type="image/jpeg" length="1"/>
	</item>
	<item>
		<title>Second Story</title>
		<link>/second</link>
	</item>
</channel>
</rss>`

	source := &model.FeedSource{ID: "example", URL: "https://example.org/feed"}
	articles, err := Parse([]byte(raw), source)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	first := articles[0]
	assert.Equal(t, "example", first.SourceID)
	assert.Equal(t, "https://example.org/first", first.URL)
	assert.Equal(t, "First Story", first.Title)
	assert.Equal(t, "Something happened.", first.Summary)
	assert.Equal(t, "https://example.org/first.jpg", first.ImageURL)
	assert.Equal(t,
		time.Date(2025, 8, 5, 10, 0, 0, 0, time.UTC),
		first.PublishedAt.UTC())

	// Relative links resolve against the feed URL.
	assert.Equal(t, "https://example.org/second", articles[1].URL)
}

func TestParseAtom(t *testing.T) {
	raw := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
	<title>Example</title>
	<entry>
		<title>Atom Story</title>
		<link href="https://example.org/atom-story"/>
		<published>2025-08-05T10:00:00Z</published>
		<content type="text">Details here.</content>
	</entry>
</feed>`

	source := &model.FeedSource{ID: "example", URL: "https://example.org/feed"}
	articles, err := Parse([]byte(raw), source)
	require.NoError(t, err)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "https://example.org/atom-story", a.URL)
	assert.Equal(t, "Atom Story", a.Title)
	assert.Equal(t, "Details here.", a.Summary)
}

func TestParseHTML(t *testing.T) {
	raw := `<!DOCTYPE html>
<html><body>
<div class="story"><a href="/one">First  Headline</a></div>
<div class="story"><a href="https://example.org/two">Second Headline</a></div>
<div class="story"><a href="/empty"></a></div>
</body></html>`

	source := &model.FeedSource{
		ID:       "example",
		URL:      "https://example.org/news",
		Selector: "div.story",
	}
	articles, err := Parse([]byte(raw), source)
	require.NoError(t, err)
	require.Len(t, articles, 2)

	assert.Equal(t, "https://example.org/one", articles[0].URL)
	assert.Equal(t, "First Headline", articles[0].Title)
	assert.Equal(t, "https://example.org/two", articles[1].URL)
}

func TestParseHTMLWithoutSelector(t *testing.T) {
	source := &model.FeedSource{ID: "example", URL: "https://example.org/"}
	_, err := Parse([]byte("<html><body>hi</body></html>"), source)
	require.Error(t, err)
}

func TestParseUnknownFormat(t *testing.T) {
	source := &model.FeedSource{ID: "example", URL: "https://example.org/"}
	_, err := Parse([]byte(`{"not": "a feed"}`), source)
	require.ErrorIs(t, err, ErrFormatNotDetected)
}
