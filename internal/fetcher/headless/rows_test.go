package headless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

const renderedPage = `<html><body>
<table class="notifications"><tbody>
  <tr>
    <td class="date">19.10.26 10:15</td>
    <td class="company"> ACME   A.Ş. </td>
    <td class="codes">ACME</td>
    <td class="subject"><a href="/tr/Bildirim/1402231">Yeni İş İlişkisi</a></td>
  </tr>
  <tr>
    <td class="date">19.10.26 09:00</td>
    <td class="company">Beta Holding</td>
    <td class="codes"></td>
    <td class="subject">Finansal Rapor</td>
  </tr>
  <tr><td colspan="4"></td></tr>
</tbody></table>
</body></html>`

func TestParseRows(t *testing.T) {
	t.Parallel()

	records, err := ParseRows(renderedPage, "https://www.kap.org.tr/tr/bildirim-sorgu", Selectors{})
	require.NoError(t, err)
	require.Len(t, records, 2, "empty rows are dropped")

	first := records[0]
	assert.Equal(t, Source, first.Source)
	assert.Equal(t, "ACME   A.Ş.", first.Get(disclosure.FieldCompany))
	assert.Equal(t, "Yeni İş İlişkisi", first.Get(disclosure.FieldTitle))
	assert.Equal(t, "19.10.26 10:15", first.Get(disclosure.FieldPublishDate))
	assert.Equal(t, "https://www.kap.org.tr/tr/Bildirim/1402231", first.Get(disclosure.FieldLink))
	assert.Empty(t, first.Get(disclosure.FieldID))

	second := records[1]
	assert.Empty(t, second.Get(disclosure.FieldStockCodes))
	assert.Empty(t, second.Get(disclosure.FieldLink))
}

func TestParseRowsCustomSelectors(t *testing.T) {
	t.Parallel()

	html := `<div class="list"><div class="item"><span class="t">Yeni İş İlişkisi</span></div></div>`
	records, err := ParseRows(html, "", Selectors{Row: "div.item", Title: "span.t"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Yeni İş İlişkisi", records[0].Get(disclosure.FieldTitle))
}

func TestParseRowsNoMatches(t *testing.T) {
	t.Parallel()

	records, err := ParseRows("<html></html>", "", Selectors{})
	require.NoError(t, err)
	assert.Empty(t, records)
}
