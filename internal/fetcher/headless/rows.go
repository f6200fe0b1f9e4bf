package headless

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Selectors locate disclosure rows and their cells in the rendered page.
// Cell selectors are evaluated relative to each row.
type Selectors struct {
	Row        string
	Company    string
	StockCodes string
	Title      string
	Date       string
	Link       string
}

// DefaultSelectors match the KAP disclosure list table.
var DefaultSelectors = Selectors{
	Row:        "table.notifications tbody tr",
	Date:       "td.date",
	Company:    "td.company",
	StockCodes: "td.codes",
	Title:      "td.subject",
	Link:       "a[href*='/Bildirim/']",
}

func (s Selectors) withDefaults() Selectors {
	if s.Row == "" {
		s.Row = DefaultSelectors.Row
	}
	if s.Company == "" {
		s.Company = DefaultSelectors.Company
	}
	if s.StockCodes == "" {
		s.StockCodes = DefaultSelectors.StockCodes
	}
	if s.Title == "" {
		s.Title = DefaultSelectors.Title
	}
	if s.Date == "" {
		s.Date = DefaultSelectors.Date
	}
	if s.Link == "" {
		s.Link = DefaultSelectors.Link
	}
	return s
}

// ParseRows extracts one RawRecord per row from rendered HTML, in document
// order. Relative links are resolved against pageURL. Rows carry no id field;
// the normalizer derives identity from the link or the canonical fields.
func ParseRows(html, pageURL string, sel Selectors) ([]disclosure.RawRecord, error) {
	sel = sel.withDefaults()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered page: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var records []disclosure.RawRecord
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		fields := map[string]string{}
		set := func(name, selector string) {
			if v := strings.TrimSpace(row.Find(selector).First().Text()); v != "" {
				fields[name] = v
			}
		}
		set(disclosure.FieldCompany, sel.Company)
		set(disclosure.FieldStockCodes, sel.StockCodes)
		set(disclosure.FieldTitle, sel.Title)
		set(disclosure.FieldPublishDate, sel.Date)
		if href, ok := row.Find(sel.Link).First().Attr("href"); ok {
			fields[disclosure.FieldLink] = resolve(base, href)
		}
		if len(fields) == 0 {
			return
		}
		records = append(records, disclosure.RawRecord{Source: Source, Fields: fields})
	})
	return records, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
