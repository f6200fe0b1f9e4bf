package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/hash/sha256"
)

func raw(fields map[string]string) disclosure.RawRecord {
	return disclosure.RawRecord{Source: "test", Fields: fields}
}

func TestNormalizeFullRecord(t *testing.T) {
	t.Parallel()

	n := New(sha256.New(), "")
	rec, err := n.Normalize(raw(map[string]string{
		disclosure.FieldID:          "1234567",
		disclosure.FieldTitle:       "  Yeni İş İlişkisi  ",
		disclosure.FieldCompany:     "ACME A.Ş.",
		disclosure.FieldStockCodes:  "ACME",
		disclosure.FieldPublishDate: "19.10.26 14:32",
	}))
	require.NoError(t, err)

	assert.Equal(t, "1234567", rec.Key)
	assert.Equal(t, "Yeni İş İlişkisi", rec.Title)
	assert.Equal(t, "ACME A.Ş.", rec.Company)
	assert.Equal(t, "ACME", rec.StockCodes)
	assert.Equal(t, DefaultLinkBase+"1234567", rec.Link)
	assert.Equal(t, "test", rec.Source)
	require.NotNil(t, rec.PublishedAt)
	assert.Equal(t, time.Date(2026, time.October, 19, 11, 32, 0, 0, time.UTC), rec.PublishedAt.UTC())
}

func TestNormalizeSubstitutesPlaceholders(t *testing.T) {
	t.Parallel()

	rec, err := New(nil, "").Normalize(raw(map[string]string{disclosure.FieldID: "42"}))
	require.NoError(t, err)

	assert.Equal(t, disclosure.PlaceholderTitle, rec.Title)
	assert.Equal(t, disclosure.PlaceholderCompany, rec.Company)
	assert.Equal(t, disclosure.PlaceholderCodes, rec.StockCodes)
	assert.Equal(t, disclosure.PlaceholderDate, rec.PublishDate)
	assert.Nil(t, rec.PublishedAt)
}

func TestNormalizeKeyFromLink(t *testing.T) {
	t.Parallel()

	rec, err := New(nil, "").Normalize(raw(map[string]string{
		disclosure.FieldTitle: "Özel Durum Açıklaması",
		disclosure.FieldLink:  "https://www.kap.org.tr/tr/Bildirim/998877",
	}))
	require.NoError(t, err)
	assert.Equal(t, "998877", rec.Key)
	assert.Equal(t, "https://www.kap.org.tr/tr/Bildirim/998877", rec.Link)
}

func TestNormalizeHashFallbackIsStable(t *testing.T) {
	t.Parallel()

	n := New(sha256.New(), "")
	fields := map[string]string{
		disclosure.FieldTitle:       "Yeni İş İlişkisi",
		disclosure.FieldCompany:     "ACME",
		disclosure.FieldPublishDate: "19.10.26 14:32",
	}
	first, err := n.Normalize(raw(fields))
	require.NoError(t, err)

	// Whitespace noise from a re-render must not change the key.
	fields[disclosure.FieldTitle] = "Yeni   İş İlişkisi\n"
	second, err := n.Normalize(raw(fields))
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Contains(t, first.Key, "sha256:")
	assert.Empty(t, first.Link)
}

func TestNormalizeRejectsRecordWithoutIdentity(t *testing.T) {
	t.Parallel()

	_, err := New(sha256.New(), "").Normalize(raw(map[string]string{
		disclosure.FieldCompany: "ACME",
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, disclosure.ErrNormalize))
}

func TestNormalizeCustomLinkBase(t *testing.T) {
	t.Parallel()

	rec, err := New(nil, "https://example.test/d/").Normalize(raw(map[string]string{disclosure.FieldID: "7"}))
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/d/7", rec.Link)
}

func TestParseDateLayouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"kap short year", "19.10.26 14:32", true},
		{"kap long year", "19.10.2026 14:32", true},
		{"rfc3339", "2026-10-19T14:32:00+03:00", true},
		{"rfc1123z", "Mon, 19 Oct 2026 14:32:00 +0300", true},
		{"garbage", "yesterday", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := parseDate(tt.input)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
