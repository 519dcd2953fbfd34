package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/docsift/docsift/internal/model"
	"github.com/docsift/docsift/internal/util"
	"github.com/docsift/docsift/internal/worker"
)

// ErrFetchBlocked signals that robots.txt disallows fetching the URL.
var ErrFetchBlocked = errors.New("fetch disallowed by robots.txt")

// DocumentSource resolves a URI to normalized document text.
type DocumentSource interface {
	Text(ctx context.Context, uri string) (string, error)
}

// FileSource reads documents from the local filesystem.
type FileSource struct{}

// NewFileSource creates a filesystem document source.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Text reads and normalizes the file at path.
func (s *FileSource) Text(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document %s: %w", path, err)
	}
	return normalizeText(string(data)), nil
}

// HTTPSource fetches documents over HTTP, honoring robots.txt and a
// per-host rate limit. HTML responses are reduced to visible text.
type HTTPSource struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	userAgent  string
	maxBytes   int64
}

// NewHTTPSource creates an HTTP document source from configuration.
func NewHTTPSource(cfg model.HTTPConfig, limiter *worker.Limiter) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	return &HTTPSource{
		httpClient: &http.Client{Timeout: timeout},
		robots:     util.NewRobotsChecker(cfg.UserAgent, timeout),
		limiter:    limiter,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
	}
}

// Text fetches the URL and returns normalized text. HTML bodies are
// stripped to their visible text; everything else is treated as plain text.
func (s *HTTPSource) Text(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	allowed, crawlDelay, err := s.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("robots check for %s: %w", rawURL, err)
	}
	if !allowed {
		return "", fmt.Errorf("%s: %w", rawURL, ErrFetchBlocked)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, parsed.Host); err != nil {
			return "", err
		}
	}
	if crawlDelay > 0 {
		select {
		case <-time.After(crawlDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		text, err := htmlToText(string(body))
		if err != nil {
			return "", fmt.Errorf("parse HTML of %s: %w", rawURL, err)
		}
		return normalizeText(text), nil
	}
	return normalizeText(string(body)), nil
}

// htmlToText extracts visible text from an HTML document, skipping
// script, style, and other non-content elements.
func htmlToText(raw string) (string, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "nav", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		// Block elements end a line so headings and paragraphs stay apart.
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				b.WriteByte('\n')
			}
		}
	}
	walk(doc)
	return b.String(), nil
}

// normalizeText canonicalizes line endings and trims trailing whitespace
// per line, so identical content always chunks identically.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
