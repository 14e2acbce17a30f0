package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
)

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name string
		c    model.RawCandidate
		want string
	}{
		{"handle wins", model.RawCandidate{Source: "x", Handle: "@Acme_Salon", PlaceID: "p1"}, "x|h:acme_salon"},
		{"place id", model.RawCandidate{Source: model.SourceGoogleMaps, PlaceID: " maps/place/123 "}, "google_maps|p:maps/place/123"},
		{"website", model.RawCandidate{Source: "manual", Website: "https://www.Acme.com/"}, "manual|w:acme.com"},
		{"source lowercased", model.RawCandidate{Source: "Instagram", Handle: "bob"}, "instagram|h:bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DedupKey(tt.c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDedupKey_Deterministic(t *testing.T) {
	a := model.RawCandidate{Source: "x", Handle: "Bob", Name: "Bob One", Phone: "1"}
	b := model.RawCandidate{Source: "x", Handle: "@bob", Name: "Robert", Bio: "different"}
	ka, err := DedupKey(a)
	require.NoError(t, err)
	kb, err := DedupKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}

func TestDedupKey_MissingIdentity(t *testing.T) {
	_, err := DedupKey(model.RawCandidate{Source: "x", Name: "No Handle"})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = DedupKey(model.RawCandidate{Handle: "bob"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNormalizeWebsite(t *testing.T) {
	assert.Equal(t, "acme.com/book", NormalizeWebsite("HTTP://www.acme.com/book/?utm=1"))
	assert.Equal(t, "", NormalizeWebsite("  "))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)", rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))
}
