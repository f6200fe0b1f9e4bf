// Package normalize turns raw fetcher output into disclosure records and
// decides which of them match the keyword filter.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// DefaultLinkBase is the detail page prefix used when a source supplies no link.
const DefaultLinkBase = "https://www.kap.org.tr/tr/Bildirim/"

// Turkey has been on a fixed UTC+3 offset since 2016.
var istanbul = time.FixedZone("TRT", 3*60*60)

var (
	bildirimIDPattern = regexp.MustCompile(`/Bildirim/(\d+)`)
	numericPattern    = regexp.MustCompile(`^\d+$`)
)

var dateLayouts = []string{
	"02.01.06 15:04",
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
}

// Normalizer extracts identity and display fields from raw records.
type Normalizer struct {
	hasher   disclosure.Hasher
	linkBase string
}

// New builds a Normalizer. hasher provides fallback keys for sources without a
// dedicated identifier; linkBase may be empty to use DefaultLinkBase.
func New(hasher disclosure.Hasher, linkBase string) *Normalizer {
	if linkBase == "" {
		linkBase = DefaultLinkBase
	}
	return &Normalizer{hasher: hasher, linkBase: linkBase}
}

// Normalize converts raw into a Record. Missing optional fields are replaced
// with placeholders; only a record without any usable identity fails.
func (n *Normalizer) Normalize(raw disclosure.RawRecord) (disclosure.Record, error) {
	title := clean(raw.Get(disclosure.FieldTitle))
	company := clean(raw.Get(disclosure.FieldCompany))
	date := clean(raw.Get(disclosure.FieldPublishDate))
	link := strings.TrimSpace(raw.Get(disclosure.FieldLink))

	key, err := n.identity(raw, title, company, date, link)
	if err != nil {
		return disclosure.Record{}, err
	}
	if link == "" && numericPattern.MatchString(key) {
		link = n.linkBase + key
	}

	rec := disclosure.Record{
		Key:         key,
		Title:       orDefault(title, disclosure.PlaceholderTitle),
		Company:     orDefault(company, disclosure.PlaceholderCompany),
		StockCodes:  orDefault(clean(raw.Get(disclosure.FieldStockCodes)), disclosure.PlaceholderCodes),
		PublishDate: orDefault(date, disclosure.PlaceholderDate),
		Link:        link,
		Source:      raw.Source,
	}
	if ts, ok := parseDate(date); ok {
		rec.PublishedAt = &ts
	}
	return rec, nil
}

func (n *Normalizer) identity(raw disclosure.RawRecord, title, company, date, link string) (string, error) {
	if id := strings.TrimSpace(raw.Get(disclosure.FieldID)); id != "" {
		return id, nil
	}
	if m := bildirimIDPattern.FindStringSubmatch(link); len(m) == 2 {
		return m[1], nil
	}
	if title == "" || n.hasher == nil {
		return "", fmt.Errorf("%w: no identifier and no title", disclosure.ErrNormalize)
	}
	return n.hasher.Key(company, title, date), nil
}

func parseDate(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.ParseInLocation(layout, value, istanbul); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// clean collapses internal whitespace so scraped cells compare stably.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
