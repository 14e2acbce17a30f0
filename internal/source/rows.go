package source

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/fetcher"
	"github.com/sells-group/lead-finder/internal/model"
)

// ErrUnreadable marks an import file that could not be parsed at all.
var ErrUnreadable = eris.New("unreadable import file")

// Record is one imported row keyed by lowercased column name.
type Record map[string]string

// first returns the first non-empty value among keys.
func (r Record) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(r[k]); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeSource lowercases an import source label, defaulting to manual.
func NormalizeSource(s string) model.Source {
	if s = strings.ToLower(strings.TrimSpace(s)); s == "" {
		return model.SourceManual
	}
	return model.Source(s)
}

// CSVRows streams the data rows of a CSV file with a header row.
func CSVRows(ctx context.Context, r io.Reader, src model.Source) Stream {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	return tableRows(rowCh, errCh, src)
}

// XLSXRows streams the data rows of the first sheet of a workbook.
func XLSXRows(ctx context.Context, data []byte, src model.Source) Stream {
	rowCh, errCh := fetcher.StreamXLSX(ctx, data, fetcher.XLSXOptions{})
	return tableRows(rowCh, errCh, src)
}

// JSONRows streams decoded JSON objects, as posted by browser extensions.
func JSONRows(items []map[string]any, src model.Source) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		for i, item := range items {
			rec := make(Record, len(item))
			for k, v := range item {
				rec[strings.ToLower(strings.TrimSpace(k))] = stringify(v)
			}
			if rec.first("handle", "name") == "" {
				rec["handle"] = rec.first("profile", "profile_url")
			}
			c, err := FromRecord(rec, src)
			if err != nil {
				err = model.Validationf("lead %d: %v", i+1, err)
			}
			if !yield(c, err) {
				return
			}
		}
	}
}

func tableRows(rowCh <-chan []string, errCh <-chan error, src model.Source) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		var header []string
		line := 0
		stopped := false
		for row := range rowCh {
			if stopped {
				continue
			}
			line++
			if header == nil {
				header = make([]string, len(row))
				for i, h := range row {
					header[i] = strings.ToLower(strings.TrimSpace(h))
				}
				continue
			}
			rec := make(Record, len(header))
			for i, h := range header {
				if i < len(row) && h != "" {
					rec[h] = row[i]
				}
			}
			c, err := FromRecord(rec, src)
			if err != nil {
				err = model.Validationf("row %d: %v", line, err)
			}
			if !yield(c, err) {
				stopped = true
			}
		}
		for err := range errCh {
			if err != nil && !stopped {
				yield(model.RawCandidate{}, eris.Wrapf(ErrUnreadable, "%v", err))
			}
		}
	}
}

// FromRecord maps a loosely named record onto a candidate, accepting the
// column aliases used by common Instagram, Facebook and map exports.
func FromRecord(rec Record, src model.Source) (model.RawCandidate, error) {
	blank := true
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			blank = false
			break
		}
	}
	if blank {
		return model.RawCandidate{}, eris.New("empty row")
	}

	handle := strings.TrimPrefix(rec.first("handle", "username", "user", "page"), "@")
	profileURL := rec.first("profile_url", "profile", "profilelink", "profile_link")
	if profileURL == "" {
		if u := rec.first("url"); strings.Contains(u, "instagram.com/") || strings.Contains(u, "facebook.com/") {
			profileURL = u
		}
	}
	if handle == "" {
		handle = handleFromProfile(profileURL)
	}

	c := model.RawCandidate{
		Source:     src,
		Handle:     handle,
		Name:       rec.first("name"),
		ProfileURL: profileURL,
		Website:    rec.first("website", "website_url", "site"),
		Phone:      rec.first("phone", "phone_number", "tel", "mobile"),
		Email:      rec.first("email"),
		Location:   rec.first("location", "city", "address"),
		Bio:        rec.first("bio", "description", "about"),
		Snippet:    rec.first("recent_post_snippet", "snippet", "caption", "post_text"),
		Followers:  parseCount(rec.first("followers", "followers_count")),
	}
	if tags := rec.first("signal_keywords_matched", "tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Tags = append(c.Tags, t)
			}
		}
	}
	if src.IsMaps() {
		c.PlaceID = rec.first("place_id")
		if c.PlaceID == "" {
			c.PlaceID = profileURL
		}
		if c.PlaceID == "" && handle == "" {
			c.Handle = c.Name
		}
	}
	return c, nil
}

func handleFromProfile(profileURL string) string {
	for _, host := range []string{"instagram.com/", "facebook.com/"} {
		_, rest, ok := strings.Cut(profileURL, host)
		if !ok {
			continue
		}
		rest, _, _ = strings.Cut(rest, "?")
		rest = strings.Trim(rest, "/")
		first, _, _ := strings.Cut(rest, "/")
		return first
	}
	return ""
}

// parseCount reads follower counts such as "1200", "1,200" or "1200.0".
// Unparseable values count as zero.
func parseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return max(n, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
