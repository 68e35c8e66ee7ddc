package crawler

import (
	"context"
	"fmt"

	"knowledge-base-service/internal/logger"
)

// Crawl strategies recorded on chunk metadata.
const (
	StrategySitemap = "sitemap"
	StrategyText    = "text_file"
	StrategyWebpage = "webpage"
)

// PageSource is the fetch surface the controller drives. *Fetcher is the
// production implementation.
type PageSource interface {
	FetchText(ctx context.Context, url string) (*Page, error)
	FetchSitemap(ctx context.Context, url string) ([]string, error)
	FetchPages(urls []string) map[string]PageResult
}

// Request bounds one crawl.
type Request struct {
	SeedURL  string
	MaxDepth int // 1-5; 1 fetches the seed alone, following no links
	MaxPages int
	RenderJS bool
}

// Result is the ordered page set a crawl discovered.
type Result struct {
	Pages       []Page
	Strategy    string
	PagesFailed int
}

// Controller discovers the bounded page set for a seed URL with an
// iterative breadth-first frontier and a visited-set keyed by normalized
// URL, so depth is a true frontier and every page is fetched at most once.
type Controller struct {
	source   PageSource
	renderer Renderer // optional, JS prerender of the seed page
}

// Renderer renders a page in a headless browser and returns its HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

func NewController(source PageSource, renderer Renderer) *Controller {
	return &Controller{source: source, renderer: renderer}
}

type frontierItem struct {
	url   string
	depth int
}

// Crawl runs one bounded crawl. A single page failure is logged through
// logf and skipped; a seed failure fails the crawl. Cancellation is
// cooperative and checked between depth levels.
func (c *Controller) Crawl(ctx context.Context, req Request, logf func(format string, args ...any)) (*Result, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if req.MaxDepth < 1 {
		req.MaxDepth = 2
	}
	if req.MaxDepth > 5 {
		req.MaxDepth = 5
	}
	if req.MaxPages <= 0 {
		req.MaxPages = 500
	}

	seed, err := NormalizeURL(req.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}

	switch ClassifyURL(seed) {
	case KindText:
		page, err := c.source.FetchText(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("seed fetch failed: %w", err)
		}
		logf("fetched text file %s (%d chars)", seed, len(page.Content))
		return &Result{Pages: []Page{*page}, Strategy: StrategyText}, nil

	case KindSitemap:
		return c.crawlSitemap(ctx, seed, req, logf)

	default:
		return c.crawlBFS(ctx, seed, req, logf)
	}
}

// crawlSitemap fetches every URL a sitemap lists as an independent leaf
// fetch, with no recursive link-following.
func (c *Controller) crawlSitemap(ctx context.Context, seed string, req Request, logf func(string, ...any)) (*Result, error) {
	listed, err := c.source.FetchSitemap(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("seed fetch failed: %w", err)
	}
	logf("sitemap %s lists %d URLs", seed, len(listed))

	visited := make(map[string]bool)
	var frontier []string
	for _, raw := range listed {
		normalized, err := NormalizeURL(raw)
		if err != nil || visited[normalized] {
			continue
		}
		visited[normalized] = true
		frontier = append(frontier, normalized)
		if len(frontier) >= req.MaxPages {
			break
		}
	}

	result := &Result{Strategy: StrategySitemap}
	fetched := c.source.FetchPages(frontier)
	for _, u := range frontier {
		res, ok := fetched[u]
		if !ok || res.Err != nil {
			result.PagesFailed++
			logf("page fetch failed, skipping %s", u)
			continue
		}
		result.Pages = append(result.Pages, *res.Page)
	}

	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("seed fetch failed: %w: no pages from sitemap", ErrUnreachable)
	}
	return result, nil
}

func (c *Controller) crawlBFS(ctx context.Context, seed string, req Request, logf func(string, ...any)) (*Result, error) {
	result := &Result{Strategy: StrategyWebpage}

	visited := map[string]bool{seed: true}
	frontier := []frontierItem{{url: seed, depth: 1}}

	var rendered map[string]*Page
	if req.RenderJS && c.renderer != nil {
		rendered = c.renderSeed(ctx, seed, logf)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		depth := frontier[0].depth
		urls := make([]string, len(frontier))
		for i, item := range frontier {
			urls[i] = item.url
		}
		logf("crawling depth %d/%d: %d pages", depth, req.MaxDepth, len(urls))

		fetched := c.source.FetchPages(urls)
		var next []frontierItem

		for _, u := range urls {
			res, ok := fetched[u]
			if pre, hasPre := rendered[u]; hasPre {
				res, ok = PageResult{Page: pre}, true
			}

			if !ok || res.Err != nil {
				if u == seed && depth == 1 {
					if res.Err != nil {
						return nil, fmt.Errorf("seed fetch failed: %w", res.Err)
					}
					return nil, fmt.Errorf("seed fetch failed: %w: no content at %s", ErrUnreachable, u)
				}
				result.PagesFailed++
				logf("page fetch failed, skipping %s", u)
				continue
			}

			result.Pages = append(result.Pages, *res.Page)
			if len(result.Pages) >= req.MaxPages {
				return result, nil
			}

			if depth >= req.MaxDepth {
				continue
			}
			for _, link := range res.Page.Links {
				if visited[link] || !SameHost(seed, link) {
					continue
				}
				visited[link] = true
				next = append(next, frontierItem{url: link, depth: depth + 1})
			}
		}

		frontier = next
	}

	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("seed fetch failed: %w: nothing crawled from %s", ErrUnreachable, seed)
	}
	return result, nil
}

// renderSeed prerenders the seed in a headless browser for JS-heavy sites.
// Soft-fails to the plain fetch path.
func (c *Controller) renderSeed(ctx context.Context, seed string, logf func(string, ...any)) map[string]*Page {
	html, err := c.renderer.Render(ctx, seed)
	if err != nil {
		logger.Warn("JS render failed, falling back to plain fetch", "url", seed, "error", err)
		return nil
	}
	page, err := parseRenderedPage(seed, html)
	if err != nil {
		logf("JS render produced unusable HTML for %s", seed)
		return nil
	}
	logf("rendered %s in headless browser (%d chars)", seed, len(page.Content))
	return map[string]*Page{seed: page}
}
