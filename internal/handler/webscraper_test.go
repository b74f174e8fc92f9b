package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebScraperSimulated(t *testing.T) {
	w := NewWebScraper(http.DefaultClient, testLog())

	out, err := w.Execute(context.Background(),
		map[string]any{"userAgent": "bot/1", "latencyMs": 1},
		domain.Task{"url": "https://example.com", "selectors": []any{"h1"}})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "https://example.com", res["url"])
	assert.Equal(t, "Scraped content from example.com", res["title"])
	assert.Equal(t, true, res["simulated"])
	assert.Equal(t, "bot/1", res["userAgent"])
	assert.Contains(t, res["selectors"], "h1")
}

func TestWebScraperInvalidURL(t *testing.T) {
	w := NewWebScraper(http.DefaultClient, testLog())

	tests := []struct {
		name string
		task domain.Task
		msg  string
	}{
		{"missing", domain.Task{}, "task.url is required"},
		{"scheme", domain.Task{"url": "ftp://example.com"}, "scheme must be http or https"},
		{"host", domain.Task{"url": "https://"}, "missing host"},
		{"unparseable", domain.Task{"url": "http://[::1"}, "invalid task.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Execute(context.Background(), nil, tt.task)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestWebScraperFetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><TITLE> Example Domain </TITLE></head><body>hi</body></html>`))
	}))
	defer srv.Close()

	w := NewWebScraper(srv.Client(), testLog())
	out, err := w.Execute(context.Background(),
		map[string]any{"fetch": true, "userAgent": "agentos-test"},
		domain.Task{"url": srv.URL + "/page"})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, "Example Domain", res["title"])
	assert.Equal(t, http.StatusOK, res["status"])
	assert.Equal(t, false, res["simulated"])
	assert.Equal(t, "agentos-test", gotUA)
}

func TestWebScraperFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebScraper(srv.Client(), testLog())
	_, err := w.Execute(context.Background(), map[string]any{"fetch": true}, domain.Task{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		name        string
		page        string
		contentType string
		want        string
	}{
		{"plain", `<title>Hello</title>`, "", "Hello"},
		{"attributes", `<title lang="en">With Attr</title>`, "", "With Attr"},
		{"upper case", `<TITLE> Shout </TITLE>`, "", "Shout"},
		{"missing", `<p>no title</p>`, "", ""},
		{"unterminated", `<title>unterminated`, "", "unterminated"},
		{"latin-1 before title", "<p>caf\xe9</p><title>Home</title>", "text/html; charset=iso-8859-1", "Home"},
		{"undeclared latin-1", "<!-- caf\xe9 --><title>Home</title>", "", "Home"},
		{"decoded charset", "<title>caf\xe9</title>", "text/html; charset=iso-8859-1", "caf\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parsePage([]byte(tt.page), tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pageTitle(doc))
		})
	}
}

func TestWebScraperSelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body>
			<h1 class="t">Hello</h1>
			<h1>Other</h1>
			<ul><li> one </li><li>two</li></ul>
		</body></html>`))
	}))
	defer srv.Close()

	w := NewWebScraper(srv.Client(), testLog())
	out, err := w.Execute(context.Background(),
		map[string]any{"fetch": true},
		domain.Task{"url": srv.URL, "selectors": []any{"h1.t", "li", "table"}})
	require.NoError(t, err)

	res := out.(map[string]any)
	assert.Equal(t, map[string][]string{
		"h1.t":  {"Hello"},
		"li":    {"one", "two"},
		"table": {},
	}, res["selectors"])
}

func TestWebScraperInvalidSelector(t *testing.T) {
	w := NewWebScraper(http.DefaultClient, testLog())
	_, err := w.Execute(context.Background(), nil,
		domain.Task{"url": "https://example.com", "selectors": []any{"h1["}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid selector "h1["`)
}
