package goqueryparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body>
<ul class="products">
  <li><a href="/widgets/alpha">Alpha Widget</a></li>
  <li><a href="/widgets/beta">Beta Widget</a></li>
  <li><a href="/widgets/alpha">Alpha Widget</a></li>
  <li><a href="#top">Back to top</a></li>
</ul>
<nav><a rel="next" href="/widgets?page=2">Next</a></nav>
</body></html>`

func TestParseExtractsEntriesAndNextPage(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	listing, err := p.Parse("https://shop.example.com/widgets", []byte(listingPage))
	require.NoError(t, err)

	require.Len(t, listing.Entries, 2)
	require.Equal(t, "Alpha Widget", listing.Entries[0].Title)
	require.Equal(t, "https://shop.example.com/widgets/alpha", listing.Entries[0].URL)
	require.Equal(t, "Beta Widget", listing.Entries[1].Title)
	require.Equal(t, "https://shop.example.com/widgets?page=2", listing.NextPageURL)
}

func TestParseNextPageFromLinkText(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<li><a href="/a">Thing A</a></li>
<a href="/page/3">Next</a>
</body></html>`

	p := New(Config{})
	listing, err := p.Parse("https://example.com/page/2", []byte(page))
	require.NoError(t, err)
	require.Equal(t, "https://example.com/page/3", listing.NextPageURL)
}

func TestParseLastPageHasNoNextLink(t *testing.T) {
	t.Parallel()

	page := `<html><body><li><a href="/a">Thing A</a></li></body></html>`

	p := New(Config{})
	listing, err := p.Parse("https://example.com/page/9", []byte(page))
	require.NoError(t, err)
	require.Empty(t, listing.NextPageURL)
	require.Len(t, listing.Entries, 1)
}

func TestParseCustomSelector(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<div class="card"><a href="/x">X</a></div>
<li><a href="/ignored">Ignored</a></li>
</body></html>`

	p := New(Config{EntrySelector: ".card a[href]"})
	listing, err := p.Parse("https://example.com/", []byte(page))
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	require.Equal(t, "https://example.com/x", listing.Entries[0].URL)
}

func TestParseMaxEntriesCap(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<li><a href="/1">One</a></li>
<li><a href="/2">Two</a></li>
<li><a href="/3">Three</a></li>
</body></html>`

	p := New(Config{MaxEntries: 2})
	listing, err := p.Parse("https://example.com/", []byte(page))
	require.NoError(t, err)
	require.Len(t, listing.Entries, 2)
}

func TestParseSkipsNonHTTPAndEmptyTitles(t *testing.T) {
	t.Parallel()

	page := `<html><body>
<li><a href="mailto:sales@example.com">Contact</a></li>
<li><a href="javascript:void(0)">Popup</a></li>
<li><a href="/real">   </a></li>
<li><a href="/kept">Kept</a></li>
</body></html>`

	p := New(Config{})
	listing, err := p.Parse("https://example.com/", []byte(page))
	require.NoError(t, err)
	require.Len(t, listing.Entries, 1)
	require.Equal(t, "Kept", listing.Entries[0].Title)
}

func TestParseRejectsBadPageURL(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	_, err := p.Parse("://bad", []byte("<html></html>"))
	require.Error(t, err)
}
