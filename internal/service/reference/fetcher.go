// Package reference fetches web pages and reduces them to plain text for the
// assistant's instructions.
package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/singleflight"
)

// maxPageBytes bounds how much of a page is read.
const maxPageBytes = 2 << 20

// Config controls fetching.
type Config struct {
	URLs     []string
	MaxChars int           // per page, 0 is unlimited
	Timeout  time.Duration // per page
	CacheTTL time.Duration // 0 disables caching
}

// Fetcher builds reference text from a fixed set of pages.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
	group  singleflight.Group

	mu        sync.Mutex
	cached    string
	fetchedAt time.Time
}

// New creates a fetcher. client may be nil.
func New(cfg Config, client *http.Client, logger zerolog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fetcher{cfg: cfg, client: client, logger: logger}
}

// Text returns the reference text: one "From <url>:" block per page. Any
// fetch failure yields an empty string so calls proceed without it.
func (f *Fetcher) Text(ctx context.Context) string {
	if len(f.cfg.URLs) == 0 {
		return ""
	}

	f.mu.Lock()
	if f.cfg.CacheTTL > 0 && !f.fetchedAt.IsZero() && time.Since(f.fetchedAt) < f.cfg.CacheTTL {
		text := f.cached
		f.mu.Unlock()
		return text
	}
	f.mu.Unlock()

	v, err, _ := f.group.Do("reference", func() (any, error) {
		return f.fetchAll(ctx)
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("Reference text unavailable, continuing without it")
		return ""
	}

	text := v.(string)
	f.mu.Lock()
	f.cached = text
	f.fetchedAt = time.Now()
	f.mu.Unlock()
	return text
}

func (f *Fetcher) fetchAll(ctx context.Context) (string, error) {
	chunks := make([]string, 0, len(f.cfg.URLs))
	for _, url := range f.cfg.URLs {
		text, err := f.fetchPage(ctx, url)
		if err != nil {
			return "", err
		}
		chunks = append(chunks, fmt.Sprintf("From %s:\n%s", url, text))
	}

	f.logger.Debug().Int("pages", len(chunks)).Msg("Reference text fetched")
	return strings.Join(chunks, "\n\n"), nil
}

func (f *Fetcher) fetchPage(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	text, err := PlainText(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	return truncate(text, f.cfg.MaxChars), nil
}

// PlainText extracts visible text from an HTML document with whitespace
// collapsed. Script, style and noscript content is dropped.
func PlainText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(b.String()), " "), nil
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
