package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves canned pages and records every fetch.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[string]*Page
	sitemap map[string][]string
	failing map[string]bool
	fetched []string
}

func (f *fakeSource) FetchText(ctx context.Context, url string) (*Page, error) {
	f.record(url)
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return nil, ErrUnreachable
}

func (f *fakeSource) FetchSitemap(ctx context.Context, url string) ([]string, error) {
	f.record(url)
	if urls, ok := f.sitemap[url]; ok {
		return urls, nil
	}
	return nil, ErrUnreachable
}

func (f *fakeSource) FetchPages(urls []string) map[string]PageResult {
	results := make(map[string]PageResult)
	for _, u := range urls {
		f.record(u)
		if f.failing[u] {
			results[u] = PageResult{Err: fmt.Errorf("%w: boom", ErrUnreachable)}
			continue
		}
		if p, ok := f.pages[u]; ok {
			results[u] = PageResult{Page: p}
		} else {
			results[u] = PageResult{Err: fmt.Errorf("%w: 404", ErrUnreachable)}
		}
	}
	return results
}

func (f *fakeSource) record(url string) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
}

func page(url string, links ...string) *Page {
	return &Page{URL: url, Title: "t", Content: "content of " + url, Links: links}
}

func TestCrawlDepthOneFollowsNoLinks(t *testing.T) {
	src := &fakeSource{pages: map[string]*Page{
		"https://example.com/a": page("https://example.com/a", "https://example.com/b", "https://example.com/c"),
	}}
	ctrl := NewController(src, nil)

	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/a", MaxDepth: 1}, nil)
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, []string{"https://example.com/a"}, src.fetched)
}

func TestCrawlDepthTwoFetchesLinkedPagesOnce(t *testing.T) {
	// two links point at the same normalized URL
	src := &fakeSource{pages: map[string]*Page{
		"https://example.com/": page("https://example.com/",
			"https://example.com/one", "https://example.com/two", "https://example.com/one", "https://example.com/three"),
		"https://example.com/one":   page("https://example.com/one"),
		"https://example.com/two":   page("https://example.com/two"),
		"https://example.com/three": page("https://example.com/three"),
	}}
	ctrl := NewController(src, nil)

	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/", MaxDepth: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 4)
	assert.Len(t, src.fetched, 4) // seed + 3 distinct links, no duplicate fetch
}

func TestCrawlExcludesForeignHosts(t *testing.T) {
	src := &fakeSource{pages: map[string]*Page{
		"https://example.com/": page("https://example.com/",
			"https://other.com/page", "https://example.com/local"),
		"https://example.com/local": page("https://example.com/local"),
	}}
	ctrl := NewController(src, nil)

	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/", MaxDepth: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 2)
	for _, u := range src.fetched {
		assert.NotContains(t, u, "other.com")
	}
}

func TestCrawlSeedFailureFailsJob(t *testing.T) {
	src := &fakeSource{
		pages:   map[string]*Page{},
		failing: map[string]bool{"https://example.com/": true},
	}
	ctrl := NewController(src, nil)

	_, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/", MaxDepth: 2}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestCrawlPageFailureIsSkipped(t *testing.T) {
	src := &fakeSource{
		pages: map[string]*Page{
			"https://example.com/":   page("https://example.com/", "https://example.com/bad", "https://example.com/ok"),
			"https://example.com/ok": page("https://example.com/ok"),
		},
		failing: map[string]bool{"https://example.com/bad": true},
	}
	ctrl := NewController(src, nil)

	var logs []string
	logf := func(format string, args ...any) { logs = append(logs, fmt.Sprintf(format, args...)) }

	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/", MaxDepth: 2}, logf)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 2)
	assert.Equal(t, 1, res.PagesFailed)

	var loggedSkip bool
	for _, l := range logs {
		if l == "page fetch failed, skipping https://example.com/bad" {
			loggedSkip = true
		}
	}
	assert.True(t, loggedSkip, "recovered failure must be logged")
}

func TestCrawlSitemapLeafFetches(t *testing.T) {
	src := &fakeSource{
		sitemap: map[string][]string{
			"https://example.com/sitemap.xml": {
				"https://example.com/a",
				"https://example.com/b",
				"https://example.com/a", // duplicate entry
			},
		},
		pages: map[string]*Page{
			// listed pages carry links that must NOT be followed
			"https://example.com/a": page("https://example.com/a", "https://example.com/extra"),
			"https://example.com/b": page("https://example.com/b"),
		},
	}
	ctrl := NewController(src, nil)

	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/sitemap.xml", MaxDepth: 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategySitemap, res.Strategy)
	assert.Len(t, res.Pages, 2)
	for _, u := range src.fetched {
		assert.NotEqual(t, "https://example.com/extra", u)
	}
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	pages := map[string]*Page{}
	var links []string
	for i := 0; i < 20; i++ {
		u := fmt.Sprintf("https://example.com/p%d", i)
		links = append(links, u)
		pages[u] = page(u)
	}
	pages["https://example.com/"] = page("https://example.com/", links...)

	ctrl := NewController(&fakeSource{pages: pages}, nil)
	res, err := ctrl.Crawl(context.Background(), Request{SeedURL: "https://example.com/", MaxDepth: 2, MaxPages: 5}, nil)
	require.NoError(t, err)
	assert.Len(t, res.Pages, 5)
}
