package tools

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/security"
)

// Tool name constants for network operations registered with Genkit.
const (
	// WebFetchName is the Genkit tool name for fetching page content.
	WebFetchName = "web_fetch"
	// WebSearchName is the Genkit tool name for web search.
	WebSearchName = "web_search"
)

const (
	// MaxURLsPerRequest bounds one web_fetch call.
	MaxURLsPerRequest = 5
	// MaxSearchResults bounds one web_search call.
	MaxSearchResults = 10
	// DefaultSearchResults is used when the model leaves maxResults unset.
	DefaultSearchResults = 5

	// maxFetchBytes caps one page body before extraction.
	maxFetchBytes = 5 * 1024 * 1024
	// maxContentChars caps extracted text handed back to the model.
	maxContentChars = 8000

	defaultSearchBaseURL = "https://html.duckduckgo.com"
	defaultParallelism   = 2
	defaultFetchDelay    = 1 * time.Second
	defaultFetchTimeout  = 30 * time.Second
	searchTimeout        = 30 * time.Second

	// userAgent identifies fetches politely; some result pages reject
	// blank or default Go agents outright.
	userAgent = "Mozilla/5.0 (compatible; strand/1.0; +https://github.com/strand-ai/strand)"
)

// FetchInput defines input for the web_fetch tool.
type FetchInput struct {
	URLs []string `json:"urls" jsonschema_description:"HTTP or HTTPS URLs to fetch (maximum 5 per call)"`
}

// PageResult is one successfully fetched and extracted page.
type PageResult struct {
	URL     string `json:"url" jsonschema_description:"The fetched URL"`
	Title   string `json:"title" jsonschema_description:"Page title"`
	Content string `json:"content" jsonschema_description:"Readable page text"`
	Excerpt string `json:"excerpt,omitempty" jsonschema_description:"Short page summary when available"`
}

// FailedURL records one URL that could not be fetched and why.
type FailedURL struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// FetchOutput is the result of one web_fetch call. Error is set only when
// the whole request was rejected; per-URL problems land in FailedURLs.
type FetchOutput struct {
	Results    []PageResult `json:"results"`
	FailedURLs []FailedURL  `json:"failed_urls,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// SearchInput defines input for the web_search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema_description:"The search query"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema_description:"Maximum results to return (1-10, default 5)"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchOutput is the result of one web_search call.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Error   string         `json:"error,omitempty"`
}

// NetworkConfig tunes the network toolset. Zero values take defaults.
type NetworkConfig struct {
	// SearchBaseURL is the root of the HTML search endpoint.
	SearchBaseURL string
	// FetchParallelism bounds concurrent page fetches in one call.
	FetchParallelism int
	// FetchDelay spaces requests against the same domain.
	FetchDelay time.Duration
	// FetchTimeout bounds one page request.
	FetchTimeout time.Duration
}

// NetworkTools provides web_fetch and web_search with SSRF protection.
// Every target URL is validated statically and again at dial time, and
// redirects are re-validated hop by hop.
type NetworkTools struct {
	searchBaseURL    string
	searchClient     *http.Client
	fetchParallelism int
	fetchDelay       time.Duration
	fetchTimeout     time.Duration
	urlValidator     *security.URL
	skipSSRFCheck    bool
	logger           log.Logger
}

// NewNetworkTools creates the network toolset with SSRF protection enabled.
func NewNetworkTools(cfg NetworkConfig, logger log.Logger) (*NetworkTools, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	validator := security.NewURL()
	nt := &NetworkTools{
		searchBaseURL:    defaultSearchBaseURL,
		fetchParallelism: defaultParallelism,
		fetchDelay:       defaultFetchDelay,
		fetchTimeout:     defaultFetchTimeout,
		urlValidator:     validator,
		logger:           logger,
	}
	if cfg.SearchBaseURL != "" {
		nt.searchBaseURL = strings.TrimSuffix(cfg.SearchBaseURL, "/")
	}
	if cfg.FetchParallelism > 0 {
		nt.fetchParallelism = cfg.FetchParallelism
	}
	if cfg.FetchDelay > 0 {
		nt.fetchDelay = cfg.FetchDelay
	}
	if cfg.FetchTimeout > 0 {
		nt.fetchTimeout = cfg.FetchTimeout
	}
	nt.searchClient = &http.Client{
		Timeout:       searchTimeout,
		Transport:     validator.SafeTransport(),
		CheckRedirect: validator.ValidateRedirect,
	}
	return nt, nil
}

// RegisterNetwork registers web_fetch and web_search with Genkit, each
// wrapped so tool lifecycle events reach a streaming emitter when one is
// in the call context.
func RegisterNetwork(g *genkit.Genkit, nt *NetworkTools) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if nt == nil {
		return nil, fmt.Errorf("network tools are required")
	}

	return []ai.Tool{
		genkit.DefineTool(g, WebFetchName,
			"Fetch one or more web pages and extract their readable content. "+
				"Returns: page title, extracted article text, and a short excerpt per URL. "+
				"Use this to: read documentation, articles, or any page whose URL you already know. "+
				"Accepts up to 5 URLs per call; pages that cannot be fetched are reported individually. "+
				"Security: requests to internal networks, localhost, and cloud metadata endpoints are blocked.",
			WithEvents(WebFetchName, nt.Fetch)),
		genkit.DefineTool(g, WebSearchName,
			"Search the web and return result titles, URLs, and snippets. "+
				"Use this to: find current information, discover sources to fetch with web_fetch. "+
				"Returns up to 10 results (default 5). "+
				"Follow up with web_fetch on promising URLs to read full content.",
			WithEvents(WebSearchName, nt.Search)),
	}, nil
}

// Fetch retrieves the given URLs concurrently and extracts readable text
// from each. Business failures are reported in the output; the Go error is
// reserved for infrastructure problems.
func (nt *NetworkTools) Fetch(ctx *ai.ToolContext, input FetchInput) (FetchOutput, error) {
	nt.logger.Info("Fetch called", "url_count", len(input.URLs))

	if len(input.URLs) == 0 {
		return FetchOutput{Error: "at least one URL is required"}, nil
	}
	if len(input.URLs) > MaxURLsPerRequest {
		return FetchOutput{Error: fmt.Sprintf("Maximum %d URLs per request, got %d", MaxURLsPerRequest, len(input.URLs))}, nil
	}

	var (
		mu      sync.Mutex
		results []PageResult
		failed  []FailedURL
	)

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxBodySize(maxFetchBytes),
		colly.IgnoreRobotsTxt(),
		colly.UserAgent(userAgent),
	)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: nt.fetchParallelism,
		Delay:       nt.fetchDelay,
	}); err != nil {
		return FetchOutput{}, fmt.Errorf("configuring fetch limits: %w", err)
	}
	c.SetRequestTimeout(nt.fetchTimeout)
	if !nt.skipSSRFCheck {
		c.WithTransport(nt.urlValidator.SafeTransport())
		c.SetRedirectHandler(nt.urlValidator.ValidateRedirect)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Context != nil && ctx.Context.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page, err := nt.extractPage(r)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, FailedURL{URL: r.Request.URL.String(), Reason: err.Error()})
			return
		}
		results = append(results, page)
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, FailedURL{URL: r.Request.URL.String(), Reason: err.Error()})
	})

	seen := make(map[string]struct{}, len(input.URLs))
	for _, raw := range input.URLs {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		if !nt.skipSSRFCheck {
			if err := nt.urlValidator.Validate(raw); err != nil {
				nt.logger.Warn("Fetch URL rejected", "url", raw, "error", err)
				mu.Lock()
				failed = append(failed, FailedURL{URL: raw, Reason: fmt.Sprintf("blocked: %v", err)})
				mu.Unlock()
				continue
			}
		}
		if err := c.Visit(raw); err != nil {
			mu.Lock()
			failed = append(failed, FailedURL{URL: raw, Reason: err.Error()})
			mu.Unlock()
		}
	}
	c.Wait()

	if ctx.Context != nil && ctx.Context.Err() != nil {
		return FetchOutput{}, fmt.Errorf("fetch canceled: %w", ctx.Context.Err())
	}

	nt.logger.Info("Fetch finished", "results", len(results), "failed", len(failed))
	return FetchOutput{Results: results, FailedURLs: failed}, nil
}

// extractPage pulls readable text out of one fetched page. Readability
// handles article-shaped pages; anything it cannot parse degrades to a
// plain text scrape of the document.
func (nt *NetworkTools) extractPage(r *colly.Response) (PageResult, error) {
	pageURL := r.Request.URL

	article, err := readability.FromReader(bytes.NewReader(r.Body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return PageResult{
			URL:     pageURL.String(),
			Title:   article.Title,
			Content: clampContent(article.TextContent),
			Excerpt: article.Excerpt,
		}, nil
	}

	doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if qerr != nil {
		return PageResult{}, fmt.Errorf("extracting content: %w", qerr)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if text == "" {
		return PageResult{}, fmt.Errorf("no readable content")
	}
	return PageResult{
		URL:     pageURL.String(),
		Title:   strings.TrimSpace(doc.Find("title").First().Text()),
		Content: clampContent(text),
	}, nil
}

// Search queries the HTML search endpoint and returns parsed results.
func (nt *NetworkTools) Search(ctx *ai.ToolContext, input SearchInput) (SearchOutput, error) {
	nt.logger.Info("Search called", "query", input.Query, "max_results", input.MaxResults)

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return SearchOutput{Error: "query is required"}, nil
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultSearchResults
	}
	if maxResults > MaxSearchResults {
		maxResults = MaxSearchResults
	}

	searchURL := nt.searchBaseURL + "/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, searchURL, nil)
	if err != nil {
		return SearchOutput{}, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := nt.searchClient.Do(req)
	if err != nil {
		if ctx.Context != nil && ctx.Context.Err() != nil {
			return SearchOutput{}, fmt.Errorf("search canceled: %w", ctx.Context.Err())
		}
		nt.logger.Warn("Search request failed", "query", query, "error", err)
		return SearchOutput{Query: query, Error: fmt.Sprintf("search request failed: %v", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		nt.logger.Warn("Search unexpected status", "query", query, "status", resp.StatusCode)
		return SearchOutput{Query: query, Error: fmt.Sprintf("search returned status %d", resp.StatusCode)}, nil
	}

	results, err := parseSearchResults(resp.Body, maxResults)
	if err != nil {
		nt.logger.Warn("Search parse failed", "query", query, "error", err)
		return SearchOutput{Query: query, Error: fmt.Sprintf("parsing search results: %v", err)}, nil
	}

	nt.logger.Info("Search succeeded", "query", query, "result_count", len(results))
	return SearchOutput{Query: query, Results: results}, nil
}

// parseSearchResults extracts hits from a DuckDuckGo HTML results page.
func parseSearchResults(body io.Reader, maxResults int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}
		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		target := resolveResultURL(href)
		if title == "" || target == "" {
			return true
		}
		results = append(results, SearchResult{
			Title:   title,
			URL:     target,
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		})
		return len(results) < maxResults
	})
	return results, nil
}

// resolveResultURL unwraps the redirect links result pages use
// (//duckduckgo.com/l/?uddg=<target>) back into the target URL.
func resolveResultURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}

// clampContent bounds extracted text so one verbose page cannot flood the
// model context.
func clampContent(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxContentChars {
		return text
	}
	return text[:maxContentChars] + "\n[content truncated]"
}
