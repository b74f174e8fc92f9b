package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
	"golang.org/x/net/html/charset"
)

// maxPageBytes caps how much of a fetched page is read.
const maxPageBytes = 2 << 20

// WebScraper fetches a page and reports a summary of it. Unless the agent
// config sets fetch: true the fetch is simulated after latencyMs.
type WebScraper struct {
	client *http.Client
	log    *logging.Logger
	now    func() time.Time
}

// NewWebScraper creates the web-scraper handler.
func NewWebScraper(client *http.Client, log *logging.Logger) *WebScraper {
	return &WebScraper{client: client, log: log.Sub("web-scraper"), now: time.Now}
}

func (w *WebScraper) Name() string { return "web-scraper" }

func (w *WebScraper) Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error) {
	target, err := parseTargetURL(task.String("url"))
	if err != nil {
		return nil, err
	}

	userAgent := stringOption(cfg, "userAgent", "agentos-scraper/1.0")
	selectors, err := compileSelectors(stringSliceOption(task, "selectors"))
	if err != nil {
		return nil, err
	}

	if !boolOption(cfg, "fetch", false) {
		if err := sleep(ctx, latency(cfg)); err != nil {
			return nil, err
		}
		result := map[string]any{
			"url":       target.String(),
			"title":     "Scraped content from " + target.Host,
			"status":    http.StatusOK,
			"userAgent": userAgent,
			"simulated": true,
			"scrapedAt": w.now().UTC(),
		}
		// Nothing was fetched, so every selector matches nothing.
		if len(selectors) > 0 {
			matches := make(map[string][]string, len(selectors))
			for _, sel := range selectors {
				matches[sel.raw] = []string{}
			}
			result["selectors"] = matches
		}
		return result, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}

	w.log.Debug().Str("url", target.String()).Int("bytes", len(body)).Msg("page fetched")

	contentType := resp.Header.Get("Content-Type")
	doc, err := parsePage(body, contentType)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"url":           target.String(),
		"title":         pageTitle(doc),
		"status":        resp.StatusCode,
		"contentType":   contentType,
		"contentLength": len(body),
		"userAgent":     userAgent,
		"simulated":     false,
		"scrapedAt":     w.now().UTC(),
	}
	if len(selectors) > 0 {
		result["selectors"] = matchSelectors(doc, selectors)
	}
	return result, nil
}

type selector struct {
	raw string
	m   goquery.Matcher
}

func compileSelectors(raw []string) ([]selector, error) {
	out := make([]selector, 0, len(raw))
	for _, r := range raw {
		m, err := cascadia.Compile(r)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", r, err)
		}
		out = append(out, selector{raw: r, m: m})
	}
	return out, nil
}

// parsePage decodes body using the charset named by the Content-Type
// header or the page's own meta tag, falling back to UTF-8.
func parsePage(body []byte, contentType string) (*goquery.Document, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		r = bytes.NewReader(body)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// matchSelectors returns the trimmed text of every element each selector
// matches, in document order.
func matchSelectors(doc *goquery.Document, selectors []selector) map[string][]string {
	out := make(map[string][]string, len(selectors))
	for _, sel := range selectors {
		texts := []string{}
		doc.FindMatcher(sel.m).Each(func(_ int, s *goquery.Selection) {
			texts = append(texts, strings.TrimSpace(s.Text()))
		})
		out[sel.raw] = texts
	}
	return out
}

func parseTargetURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("task.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid task.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid task.url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid task.url %q: missing host", raw)
	}
	return u, nil
}
