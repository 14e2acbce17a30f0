package source

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-finder/internal/model"
)

func collectAll(s Stream) (items []model.RawCandidate, itemErrs int, fatal error) {
	for c, err := range s {
		switch {
		case err == nil:
			items = append(items, c)
		case IsItemError(err):
			itemErrs++
		default:
			fatal = err
		}
	}
	return items, itemErrs, fatal
}

func TestCSVRows_Aliases(t *testing.T) {
	input := strings.Join([]string{
		"Username,Name,Description,Website_URL,Phone_Number,Caption,Followers",
		"@nailsbyjo,Nails by Jo,Book now,jo.test,555-0101,new set,\"1,200\"",
		",,,,,,",
		"bob,Bob,,,,,abc",
	}, "\n")

	items, itemErrs, fatal := collectAll(CSVRows(context.Background(), strings.NewReader(input), "instagram"))
	require.NoError(t, fatal)
	assert.Equal(t, 1, itemErrs)
	require.Len(t, items, 2)

	jo := items[0]
	assert.Equal(t, model.SourceInstagram, jo.Source)
	assert.Equal(t, "nailsbyjo", jo.Handle)
	assert.Equal(t, "Book now", jo.Bio)
	assert.Equal(t, "jo.test", jo.Website)
	assert.Equal(t, "555-0101", jo.Phone)
	assert.Equal(t, "new set", jo.Snippet)
	assert.Equal(t, 1200, jo.Followers)
	assert.Zero(t, items[1].Followers)
}

func TestFromRecord_ProfileURLs(t *testing.T) {
	c, err := FromRecord(Record{"url": "https://www.instagram.com/brightsmile/?hl=en"}, "manual")
	require.NoError(t, err)
	assert.Equal(t, "brightsmile", c.Handle)
	assert.Equal(t, "https://www.instagram.com/brightsmile/?hl=en", c.ProfileURL)

	c, err = FromRecord(Record{"profile_link": "https://facebook.com/cityplumbing/about"}, "manual")
	require.NoError(t, err)
	assert.Equal(t, "cityplumbing", c.Handle)

	c, err = FromRecord(Record{"url": "https://example.test"}, "manual")
	require.NoError(t, err)
	assert.Empty(t, c.ProfileURL)
}

func TestFromRecord_MapsSources(t *testing.T) {
	c, err := FromRecord(Record{"name": "Bright Smile", "profile_url": "https://maps.test/p/1"}, "google_maps")
	require.NoError(t, err)
	assert.Equal(t, "https://maps.test/p/1", c.PlaceID)
	assert.Empty(t, c.Handle)

	c, err = FromRecord(Record{"name": "Bright Smile"}, "gmb")
	require.NoError(t, err)
	assert.Equal(t, "Bright Smile", c.Handle)
}

func TestFromRecord_Tags(t *testing.T) {
	c, err := FromRecord(Record{"handle": "a", "signal_keywords_matched": "plumber, quote ,"}, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"plumber", "quote"}, c.Tags)
}

func TestNormalizeSource(t *testing.T) {
	assert.Equal(t, model.SourceManual, NormalizeSource("  "))
	assert.Equal(t, model.Source("facebook"), NormalizeSource(" Facebook "))
}

func TestCSVRows_CancelledIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, _, fatal := collectAll(CSVRows(ctx, strings.NewReader("handle\na\n"), "manual"))
	assert.Empty(t, items)
	assert.Error(t, fatal)
}

func TestXLSXRows(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Leads")
	require.NoError(t, err)
	for _, r := range [][]string{{"Handle", "Website"}, {"@a", "a.test"}, {"", ""}, {"b", ""}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	items, itemErrs, fatal := collectAll(XLSXRows(context.Background(), buf.Bytes(), "manual"))
	require.NoError(t, fatal)
	assert.Equal(t, 1, itemErrs)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Handle)
	assert.Equal(t, "a.test", items[0].Website)
}

func TestXLSXRows_NotAWorkbook(t *testing.T) {
	_, _, fatal := collectAll(XLSXRows(context.Background(), []byte("handle\na\n"), "manual"))
	require.ErrorIs(t, fatal, ErrUnreadable)
	assert.Contains(t, fatal.Error(), "xlsx: open workbook")
}

func TestJSONRows(t *testing.T) {
	items, itemErrs, fatal := collectAll(JSONRows([]map[string]any{
		{"name": "Bright Smile", "profile": "https://maps.test/p/1", "phone": "+1 512", "followers": float64(42)},
		{"website": "https://only-site.test"},
		{},
	}, "google_maps"))
	require.NoError(t, fatal)
	assert.Equal(t, 1, itemErrs)
	require.Len(t, items, 2)
	assert.Equal(t, "https://maps.test/p/1", items[0].PlaceID)
	assert.Equal(t, 42, items[0].Followers)
	assert.Equal(t, "https://only-site.test", items[1].Website)
}
