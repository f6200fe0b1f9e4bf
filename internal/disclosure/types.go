package disclosure

import "time"

// Placeholders substituted for missing optional fields.
const (
	PlaceholderTitle   = "Başlık Yok"
	PlaceholderCompany = "Şirket Adı Yok"
	PlaceholderCodes   = "-"
	PlaceholderDate    = "Tarih Yok"
)

// Field names understood by the normalizer. Fetchers populate RawRecord.Fields
// with whichever of these their source exposes.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldStockCodes  = "stock_codes"
	FieldPublishDate = "publish_date"
	FieldLink        = "link"
)

// RawRecord is one untyped entry as returned by a Fetcher.
type RawRecord struct {
	Source string            `json:"source"`
	Fields map[string]string `json:"fields"`
}

// Get returns the named field or "".
func (r RawRecord) Get(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Record is a normalized disclosure, valid for a single scan cycle.
type Record struct {
	Key         string     `json:"key"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	StockCodes  string     `json:"stock_codes"`
	PublishDate string     `json:"publish_date"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Link        string     `json:"link,omitempty"`
	Source      string     `json:"source,omitempty"`
}

// ParseModeHTML marks Message.Text as Telegram-flavoured HTML.
const ParseModeHTML = "HTML"

// Message is a rendered notification for one record.
type Message struct {
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
	Record    Record `json:"record"`
}
