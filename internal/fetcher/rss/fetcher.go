// Package rss implements disclosure.Fetcher over an RSS or Atom feed using
// gofeed.
package rss

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Source tags records produced by this fetcher.
const Source = "rss"

// Config controls the feed request.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher downloads and parses the feed on every call.
type Fetcher struct {
	cfg    Config
	parser *gofeed.Parser
}

// New builds a Fetcher. The URL is required.
func New(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: rss feed url is required", disclosure.ErrFatalConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent
	parser.Client = &http.Client{Timeout: cfg.Timeout}
	return &Fetcher{cfg: cfg, parser: parser}, nil
}

// Fetch returns feed items in feed order, which is newest first for the
// disclosure feeds this is pointed at.
func (f *Fetcher) Fetch(ctx context.Context) ([]disclosure.RawRecord, error) {
	feed, err := f.parser.ParseURLWithContext(f.cfg.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", f.cfg.URL, err)
	}
	records := make([]disclosure.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		records = append(records, toRaw(item))
	}
	return records, nil
}

func toRaw(item *gofeed.Item) disclosure.RawRecord {
	fields := map[string]string{
		disclosure.FieldID:    cmp.Or(item.GUID, item.Link),
		disclosure.FieldTitle: item.Title,
		disclosure.FieldLink:  item.Link,
	}
	if author := authorName(item); author != "" {
		fields[disclosure.FieldCompany] = author
	}
	if len(item.Categories) > 0 {
		fields[disclosure.FieldStockCodes] = strings.Join(item.Categories, ", ")
	}
	switch {
	case item.PublishedParsed != nil:
		fields[disclosure.FieldPublishDate] = item.PublishedParsed.Format(time.RFC3339)
	case item.Published != "":
		fields[disclosure.FieldPublishDate] = item.Published
	case item.UpdatedParsed != nil:
		fields[disclosure.FieldPublishDate] = item.UpdatedParsed.Format(time.RFC3339)
	}
	return disclosure.RawRecord{Source: Source, Fields: fields}
}

func authorName(item *gofeed.Item) string {
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return strings.TrimSpace(item.Authors[0].Name)
	}
	if item.Author != nil {
		return strings.TrimSpace(item.Author.Name)
	}
	return ""
}
