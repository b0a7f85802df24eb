// Package feeds turns RSS/Atom feeds into knowledge entries so a tenant's
// own blog or changelog can ground generated posts.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/matthewjhunter/crier/internal/knowledge"
)

const userAgent = "Crier/1.0"

// maxValueLen bounds each imported item so one long article does not crowd
// the prompt.
const maxValueLen = 400

type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
	strip  *bluemonday.Policy
}

// OPML structures for parsing
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// NewFetcher creates a new feed fetcher
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		parser: parser,
		client: client,
		strip:  bluemonday.StrictPolicy(),
	}
}

// FetchFeed fetches and parses a single feed.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", url, err)
	}

	parsed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", url, err)
	}
	return parsed, nil
}

// Entries converts up to limit feed items into knowledge entries under
// category. Newer items get higher priority. Items are keyed by GUID, falling
// back to link, so re-importing a feed updates rather than duplicates.
func (f *Fetcher) Entries(feed *gofeed.Feed, category string, limit int) []knowledge.Entry {
	var out []knowledge.Entry
	for i, item := range feed.Items {
		if limit > 0 && len(out) >= limit {
			break
		}
		key := item.GUID
		if key == "" {
			key = item.Link
		}
		if key == "" {
			continue
		}

		body := item.Description
		if body == "" {
			body = item.Content
		}
		value := f.clean(item.Title)
		if text := f.clean(body); text != "" {
			value += ": " + text
		}
		if item.Link != "" {
			value += " (" + item.Link + ")"
		}
		out = append(out, knowledge.Entry{
			Category: category,
			Key:      key,
			Value:    truncate(value, maxValueLen),
			Priority: len(feed.Items) - i,
		})
	}
	return out
}

// Import fetches url and upserts its items into the tenant's knowledge.
func (f *Fetcher) Import(ctx context.Context, svc *knowledge.Service, tenantID, url, category string, limit int) (int, error) {
	feed, err := f.FetchFeed(ctx, url)
	if err != nil {
		return 0, err
	}
	if category == "" {
		category = "news"
	}
	return svc.Import(ctx, tenantID, f.Entries(feed, category, limit))
}

// ParseOPML returns every feed URL in an OPML file, including nested folders.
func ParseOPML(opmlPath string) ([]string, error) {
	data, err := os.ReadFile(opmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}

	var opml OPML
	if err := xml.Unmarshal(data, &opml); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var urls []string
	var walk func(outlines []OPMLOutline)
	walk = func(outlines []OPMLOutline) {
		for _, outline := range outlines {
			if outline.XMLURL != "" {
				urls = append(urls, outline.XMLURL)
			}
			if len(outline.Outlines) > 0 {
				walk(outline.Outlines)
			}
		}
	}
	walk(opml.Body.Outlines)
	return urls, nil
}

func (f *Fetcher) clean(s string) string {
	s = html.UnescapeString(f.strip.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return strings.TrimSpace(s[:cut]) + "..."
}
