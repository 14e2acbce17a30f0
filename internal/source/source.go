// Package source adapts upstream lead sources into candidate streams.
//
// Every adapter returns a Stream. A successful item is yielded as (c, nil).
// An item that fails validation may be yielded as (zero, err) with err
// wrapping model.ErrValidation; consumers skip it and keep reading. Any
// other error is fatal: it is yielded once, after the items already
// produced, and the stream ends.
package source

import (
	"errors"
	"iter"
	"strings"

	"github.com/sells-group/lead-finder/internal/model"
)

// Stream is a finite, non-restartable sequence of raw candidates.
type Stream = iter.Seq2[model.RawCandidate, error]

// Fail returns a stream that yields only err.
func Fail(err error) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		yield(model.RawCandidate{}, err)
	}
}

// FromSlice streams cs in order.
func FromSlice(cs []model.RawCandidate) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		for _, c := range cs {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Map applies fn to every successful item of s.
func Map(s Stream, fn func(model.RawCandidate) model.RawCandidate) Stream {
	return func(yield func(model.RawCandidate, error) bool) {
		for c, err := range s {
			if err == nil {
				c = fn(c)
			}
			if !yield(c, err) {
				return
			}
		}
	}
}

// IsItemError reports whether err only invalidates a single item.
func IsItemError(err error) bool {
	return errors.Is(err, model.ErrValidation)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
