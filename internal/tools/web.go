package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/xonecas/agentcore/internal/webcache"
)

const noSearchResults = "No results found."

// newWebFetchTool builds web_fetch: GET a URL, strip HTML to text, cache the
// result. Grounded on the teacher's WebFetch tool.
func newWebFetchTool(cache *webcache.Cache) Tool {
	client := &http.Client{Timeout: 15 * time.Second}
	return Tool{
		Spec: Spec{
			Name:        "web_fetch",
			Description: "Fetch a URL and return its content as cleaned text (HTML tags, scripts, and styles stripped). Results are cached.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"url":       {"type": "string", "description": "The URL to fetch."},
					"max_chars": {"type": "integer", "description": "Maximum characters to return. Default: 10000"}
				},
				"required": ["url"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			url := strArg(args, "url")
			if url == "" {
				return fail("url is required")
			}
			maxChars := intArg(args, "max_chars", 10000)
			if maxChars <= 0 {
				maxChars = 10000
			}

			if cached, hit := cache.GetFetch(url); hit {
				return ok(truncate(cached, maxChars))
			}

			req, err := http.NewRequestWithContext(tc.Ctx, http.MethodGet, url, nil)
			if err != nil {
				return fail("bad url: %v", err)
			}
			req.Header.Set("User-Agent", "agentcore/0.1")
			req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

			resp, err := client.Do(req)
			if err != nil {
				return fail("fetch failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fail("http %d: %s", resp.StatusCode, resp.Status)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fail("read failed: %v", err)
			}

			var text string
			if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
				text = extractText(body)
			} else {
				text = string(body)
			}

			cache.SetFetch(url, text)
			return ok(truncate(text, maxChars))
		},
	}
}

type exaSearchRequest struct {
	Query          string            `json:"query"`
	Type           string            `json:"type"`
	NumResults     int               `json:"numResults"`
	Contents       exaSearchContents `json:"contents"`
	IncludeDomains []string          `json:"includeDomains,omitempty"`
}

type exaSearchContents struct {
	Text exaTextOptions `json:"text"`
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaSearchResponse struct {
	Results []exaResult `json:"results"`
}

type exaResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Text          string `json:"text"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

// newWebSearchTool builds web_search against the Exa AI search API,
// grounded on the teacher's WebSearch tool.
func newWebSearchTool(cache *webcache.Cache, apiKey string) Tool {
	const endpoint = "https://api.exa.ai/search"
	client := &http.Client{Timeout: 15 * time.Second}

	return Tool{
		Spec: Spec{
			Name:        "web_search",
			Description: "Search the web. Use this to look up documentation, APIs, libraries, or current information. Results are cached.",
			JSONSchema: jsonSchema(`{
				"type": "object",
				"properties": {
					"query":           {"type": "string", "description": "Search query."},
					"num_results":     {"type": "integer", "description": "Number of results to return. Default: 5"},
					"type":            {"type": "string", "enum": ["auto", "fast", "deep"]},
					"include_domains": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["query"]
			}`),
		},
		Run: func(tc Context, args map[string]any) Result {
			query := strArg(args, "query")
			if query == "" {
				return fail("query is required")
			}
			if apiKey == "" {
				return fail("web search API key not configured")
			}
			numResults := intArg(args, "num_results", 5)
			if numResults <= 0 {
				numResults = 5
			}
			searchType := strArg(args, "type")
			if searchType == "" {
				searchType = "auto"
			}
			var includeDomains []string
			if raw, found := args["include_domains"].([]any); found {
				for _, d := range raw {
					if s, isStr := d.(string); isStr {
						includeDomains = append(includeDomains, s)
					}
				}
			}

			exactKey := fmt.Sprintf("%s|n=%d|t=%s|d=%s", query, numResults, searchType, strings.Join(includeDomains, ","))
			if cached, hit := cache.GetSearch(exactKey); hit {
				return ok(cached)
			}
			if cached, hit := cache.SearchCachedContent(query); hit {
				return ok(cached)
			}

			body, _ := json.Marshal(exaSearchRequest{
				Query:          query,
				Type:           searchType,
				NumResults:     numResults,
				Contents:       exaSearchContents{Text: exaTextOptions{MaxCharacters: 2000}},
				IncludeDomains: includeDomains,
			})

			req, err := http.NewRequestWithContext(tc.Ctx, http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return fail("request failed: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-api-key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return fail("search failed: %v", err)
			}
			defer resp.Body.Close()

			respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return fail("read response failed: %v", err)
			}
			if resp.StatusCode >= 400 {
				return fail("search api error %d: %s", resp.StatusCode, string(respBody))
			}

			var parsed exaSearchResponse
			if err := json.Unmarshal(respBody, &parsed); err != nil {
				return fail("parse response failed: %v", err)
			}

			result := formatSearchResults(parsed.Results)
			cache.SetSearch(exactKey, result)
			return ok(result)
		},
	}
}

func formatSearchResults(results []exaResult) string {
	if len(results) == 0 {
		return noSearchResults
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n--- %d. %s ---\nURL: %s\n", i+1, r.Title, r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate)
		}
		if r.Text != "" {
			b.WriteString(r.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func isSkipTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "td", "th", "blockquote", "pre", "hr",
		"header", "footer", "section", "article", "nav", "main":
		return true
	}
	return false
}

func extractText(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return collapseWhitespace(b.String())
		}
		tn, _ := tokenizer.TagName()
		tag := string(tn)
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if isSkipTag(tag) {
				skip++
			}
			if isBlockElement(tag) && b.Len() > 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if isSkipTag(tag) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			if blanks <= 1 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n\n[Truncated]"
}
