// Package api implements disclosure.Fetcher against the KAP search API using
// gocolly.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// DefaultURL is the public KAP disclosure search endpoint.
const DefaultURL = "https://www.kap.org.tr/tr/api/kapt-data-collector/search"

// Source tags records produced by this fetcher.
const Source = "kap-api"

// Config controls the search request.
type Config struct {
	URL       string
	Query     string
	PageSize  int
	UserAgent string
	Timeout   time.Duration
}

// searchRequest is the POST body accepted by the search endpoint.
type searchRequest struct {
	Page int    `json:"page"`
	Size int    `json:"size"`
	Sort string `json:"sort"`
	Q    string `json:"q"`
}

// searchResponse keeps entries raw so one bad entry cannot fail the batch.
type searchResponse struct {
	Data []json.RawMessage `json:"data"`
}

// fieldMap translates API attribute names to disclosure field names.
var fieldMap = map[string]string{
	"disclosureId": disclosure.FieldID,
	"title":        disclosure.FieldTitle,
	"companyName":  disclosure.FieldCompany,
	"stockCodes":   disclosure.FieldStockCodes,
	"publishDate":  disclosure.FieldPublishDate,
	"link":         disclosure.FieldLink,
}

// Fetcher posts one search request per Fetch and returns the newest window.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes the search and converts each entry to a RawRecord.
func (f *Fetcher) Fetch(ctx context.Context) ([]disclosure.RawRecord, error) {
	body, err := json.Marshal(searchRequest{
		Page: 0,
		Size: f.cfg.PageSize,
		Sort: "date,desc",
		Q:    f.cfg.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	var (
		payload  []byte
		fetchErr error
	)
	collector := f.buildCollector(ctx, &payload, &fetchErr)
	if err := runCollector(ctx, collector, f.cfg.URL, body, &fetchErr); err != nil {
		return nil, err
	}
	return decode(payload)
}

func (f *Fetcher) buildCollector(ctx context.Context, payload *[]byte, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "application/json")
		r.Headers.Set("Accept", "application/json")
	})
	collector.OnResponse(func(r *colly.Response) {
		*payload = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
	return collector
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, body []byte, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.PostRaw(url, body)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("search request canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("search response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("search request failed: %w", err)
		}
		return nil
	}
}

func decode(payload []byte) ([]disclosure.RawRecord, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("empty search response")
	}
	var resp searchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]disclosure.RawRecord, 0, len(resp.Data))
	for _, entry := range resp.Data {
		records = append(records, disclosure.RawRecord{Source: Source, Fields: decodeEntry(entry)})
	}
	return records, nil
}

// decodeEntry maps one data[] element. An element that is not an object
// yields no fields, which the normalizer rejects on its own.
func decodeEntry(entry json.RawMessage) map[string]string {
	fields := make(map[string]string, len(fieldMap))
	dec := json.NewDecoder(bytes.NewReader(entry))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return fields
	}
	for attr, name := range fieldMap {
		if v := stringify(attrs[attr]); v != "" {
			fields[name] = v
		}
	}
	return fields
}

// stringify renders scalar JSON values; arrays are joined with ", ".
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprint(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
