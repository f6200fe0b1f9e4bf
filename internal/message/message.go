// Package message renders disclosure records as rich-text notifications.
package message

import (
	"fmt"
	"html"
	"strings"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// DefaultHeader is the alert headline used when none is configured.
const DefaultHeader = "Yeni İş İlişkisi Bildirimi"

const linkLabel = "KAP BİLDİRİM DETAYLARI"

// Formatter renders records as Telegram-flavoured HTML.
type Formatter struct {
	header string
}

// NewFormatter returns a Formatter using header as the headline.
func NewFormatter(header string) *Formatter {
	if strings.TrimSpace(header) == "" {
		header = DefaultHeader
	}
	return &Formatter{header: header}
}

// Format builds the message for rec. Every interpolated value is escaped.
func (f *Formatter) Format(rec disclosure.Record) disclosure.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>%s</b> 🚨\n\n", html.EscapeString(f.header))
	fmt.Fprintf(&b, "🏢 <b>Şirket:</b> %s\n", html.EscapeString(rec.Company))
	fmt.Fprintf(&b, "ℹ️ <b>Hisse Kodu:</b> %s\n", html.EscapeString(rec.StockCodes))
	fmt.Fprintf(&b, "🗓️ <b>Tarih:</b> %s\n\n", html.EscapeString(rec.PublishDate))
	fmt.Fprintf(&b, "📋 <b>Başlık:</b> %s", html.EscapeString(rec.Title))
	if rec.Link != "" {
		fmt.Fprintf(&b, "\n\n🔗 <a href=\"%s\"><b>%s</b></a>", html.EscapeString(rec.Link), linkLabel)
	}
	return disclosure.Message{
		Text:      b.String(),
		ParseMode: disclosure.ParseModeHTML,
		Record:    rec,
	}
}
