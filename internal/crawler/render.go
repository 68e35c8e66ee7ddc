package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// ChromeRenderer renders pages in headless Chrome for JS-heavy sites.
type ChromeRenderer struct {
	Timeout time.Duration
}

func (r *ChromeRenderer) Render(ctx context.Context, urlStr string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(urlStr)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	// Soft-fail ready check; some pages never settle.
	stepCtx, cancelStep := context.WithTimeout(browserCtx, 10*time.Second)
	defer cancelStep()
	_ = chromedp.Run(stepCtx, chromedp.WaitReady("body", chromedp.ByQuery))

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return html, nil
}

// parseRenderedPage turns prerendered HTML into a Page, resolving links
// against the page URL.
func parseRenderedPage(pageURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").Text())
	content := extractMainContent(doc.Selection)
	if len(strings.Fields(content)) < 10 {
		return nil, fmt.Errorf("rendered page has too little content")
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		normalized, err := NormalizeURL(base.ResolveReference(ref).String())
		if err != nil || !isContentURL(normalized) || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})

	return &Page{URL: pageURL, Title: title, Content: content, Links: links}, nil
}
