package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-finder/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	end := start.Add(95 * time.Second)
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{ID: 2, Kind: model.RunKindMapsScrape, Status: model.RunStatusError, StartedAt: start, FinishedAt: &end, Error: "maps: a map scrape is already running"},
		{ID: 1, Kind: model.RunKindDiscover, Status: model.RunStatusRunning, StartedAt: start},
	})
	out := buf.String()
	assert.Contains(t, out, "maps_scrape")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "error: maps: a map scrape is already running")
	assert.Contains(t, out, "2026-03-02 09:30")
}

func TestFormatLeadsList(t *testing.T) {
	var buf bytes.Buffer
	formatLeadsList(&buf, []model.Lead{
		{ID: 7, Score: 62, Source: model.SourceGoogleMaps, Name: "Bright Smile", Status: model.LeadStatusNew, Website: "https://brightsmile.test", WebsiteVerdict: model.VerdictWeak},
		{ID: 8, Score: 10, Source: model.SourceX, Handle: "joe", Status: model.LeadStatusContacted},
	})
	out := buf.String()
	assert.Contains(t, out, "https://brightsmile.test (weak)")
	assert.Contains(t, out, "joe")
}

func TestFormatStats(t *testing.T) {
	var buf bytes.Buffer
	formatStats(&buf, map[model.LeadStatus]int{model.LeadStatusNew: 4, model.LeadStatusAppointmentBooked: 2})
	assert.Regexp(t, `Appointments booked:\s+2\n`, buf.String())
	assert.Regexp(t, `Total:\s+6\n`, buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ñññ...", truncate("ññññññññ", 6))
}
