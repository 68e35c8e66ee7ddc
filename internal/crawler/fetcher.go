package crawler

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"knowledge-base-service/internal/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Global HTTP transport with compression enabled
var httpTransport = &http.Transport{
	DisableCompression: false,
}

// TargetKind classifies a fetch target by shape.
type TargetKind int

const (
	KindPage TargetKind = iota
	KindSitemap
	KindText
)

// ClassifyURL determines how a target should be fetched: a sitemap
// manifest, a plain-text resource, or a generic page.
func ClassifyURL(rawURL string) TargetKind {
	lower := strings.ToLower(rawURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, "sitemap.xml") || strings.Contains(lower, "sitemap") && strings.HasSuffix(lower, ".xml"):
		return KindSitemap
	case strings.HasSuffix(lower, ".txt") || strings.HasSuffix(lower, ".md"):
		return KindText
	default:
		return KindPage
	}
}

// Page is the raw fetched content of one URL.
type Page struct {
	URL     string
	Title   string
	Content string
	Links   []string // normalized outbound links, pages only
}

// Fetcher retrieves raw content for URLs. It does not write to storage.
type Fetcher struct {
	Timeout       time.Duration
	MaxBytes      int64
	MaxConcurrent int
}

// FetchText retrieves a plain-text resource verbatim, with no parsing and
// no link following.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (*Page, error) {
	body, err := f.fetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	title := rawURL
	if idx := strings.LastIndex(rawURL, "/"); idx >= 0 && idx < len(rawURL)-1 {
		title = rawURL[idx+1:]
	}
	return &Page{URL: rawURL, Title: title, Content: string(body)}, nil
}

// sitemap XML shapes: either a urlset of leaf pages or an index of nested
// sitemaps (followed one level deep).
type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// FetchSitemap returns the page URLs listed in a sitemap manifest. Listed
// URLs are leaf fetches for the caller; no recursive link-following.
func (f *Fetcher) FetchSitemap(ctx context.Context, rawURL string) ([]string, error) {
	body, err := f.fetchRaw(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(body, &urlset); err == nil && len(urlset.URLs) > 0 {
		locs := make([]string, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				locs = append(locs, loc)
			}
		}
		return locs, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var locs []string
		for _, sm := range index.Sitemaps {
			loc := strings.TrimSpace(sm.Loc)
			if loc == "" {
				continue
			}
			nested, err := f.FetchSitemap(ctx, loc)
			if err != nil {
				logger.Warn("Nested sitemap fetch failed", "url", loc, "error", err)
				continue
			}
			locs = append(locs, nested...)
		}
		return locs, nil
	}

	return nil, fmt.Errorf("%w: not a sitemap manifest", ErrUnsupportedFormat)
}

func (f *Fetcher) fetchRaw(ctx context.Context, rawURL string) ([]byte, error) {
	client := &http.Client{Transport: httpTransport, Timeout: f.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if int64(len(body)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, f.MaxBytes)
	}
	return body, nil
}

// PageResult is the outcome of fetching a single page within a level.
type PageResult struct {
	Page *Page
	Err  error
}

// FetchPages fetches one breadth-first level of pages concurrently with a
// fresh collector. Results are keyed by normalized URL; a missing key means
// the page produced neither HTML nor an error (e.g. skipped binary
// content).
func (f *Fetcher) FetchPages(urls []string) map[string]PageResult {
	results := make(map[string]PageResult, len(urls))
	var mu sync.Mutex

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxBodySize(int(f.MaxBytes)),
	)
	c.WithTransport(httpTransport)
	c.SetRequestTimeout(f.Timeout)
	c.UserAgent = userAgent
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.MaxConcurrent,
	}); err != nil {
		logger.Warn("apply crawl limit rule", "error", err)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			// Skip binary files (PDFs, images, etc.)
			return
		}

		// Go's transport decompresses gzip; brotli is handled manually.
		contentEncoding := r.Headers.Get("Content-Encoding")
		var bodyReader io.Reader = bytes.NewReader(r.Body)
		if strings.Contains(contentEncoding, "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bodyReader)); err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		// Decode charset to UTF-8 where detectable.
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bodyReader, contentType); err == nil {
				if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		normalized, err := NormalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}

		doc := e.DOM
		title := strings.TrimSpace(doc.Find("title").Text())
		content := extractMainContent(doc)
		if len(content) < 50 {
			content = strings.TrimSpace(doc.Find("body").Text())
		}

		page := &Page{
			URL:     normalized,
			Title:   title,
			Content: content,
			Links:   extractLinks(e),
		}

		mu.Lock()
		results[normalized] = PageResult{Page: page}
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		normalized, nerr := NormalizeURL(r.Request.URL.String())
		if nerr != nil {
			return
		}
		mu.Lock()
		if _, seen := results[normalized]; !seen {
			results[normalized] = PageResult{Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
		}
		mu.Unlock()
	})

	for _, u := range urls {
		if err := c.Visit(u); err != nil {
			mu.Lock()
			if normalized, nerr := NormalizeURL(u); nerr == nil {
				if _, seen := results[normalized]; !seen {
					results[normalized] = PageResult{Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
				}
			}
			mu.Unlock()
		}
	}
	c.Wait()

	return results
}

func extractLinks(e *colly.HTMLElement) []string {
	var links []string
	seen := make(map[string]bool)

	e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		hrefLower := strings.ToLower(href)
		if strings.HasPrefix(href, "#") ||
			strings.HasPrefix(hrefLower, "javascript:") ||
			strings.HasPrefix(hrefLower, "mailto:") ||
			strings.HasPrefix(hrefLower, "tel:") {
			return
		}

		absolute := e.Request.AbsoluteURL(href)
		if absolute == "" {
			return
		}
		normalized, err := NormalizeURL(absolute)
		if err != nil || !isContentURL(normalized) {
			return
		}
		if !seen[normalized] {
			seen[normalized] = true
			links = append(links, normalized)
		}
	})

	return links
}

// extractMainContent pulls the primary content block using a selector
// cascade, stripping navigation chrome first.
func extractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .header, .sidebar, .advertisement, .ads").Remove()

	contentSelectors := []string{
		"main",
		"article",
		"[role='main']",
		".main-content",
		".content",
		"#content",
		".post",
		".entry",
		"body",
	}

	var content strings.Builder
	contentFound := false

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				contentFound = true
			}
		})
		if contentFound {
			break
		}
	}

	if !contentFound {
		content.WriteString(doc.Find("body").Text())
	}

	text := strings.TrimSpace(content.String())

	lines := strings.Split(text, "\n")
	var cleanedLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}
	return strings.Join(cleanedLines, "\n")
}

// isContentURL filters out URLs that never hold indexable content.
func isContentURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	excludedPatterns := []string{
		"/wp-json/", "/api/", "/ajax/",
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".xml", ".zip",
		"/feed/", "/rss/", "/atom/",
		"/search?", "/?s=",
		"/wp-admin/", "/wp-includes/",
	}

	pathLower := strings.ToLower(parsed.Path)
	queryLower := strings.ToLower(parsed.RawQuery)
	for _, pattern := range excludedPatterns {
		if strings.Contains(pathLower, pattern) || strings.Contains(queryLower, pattern) {
			return false
		}
	}
	return true
}
