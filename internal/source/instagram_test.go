package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/resilience"
	"github.com/sells-group/lead-finder/pkg/meta"
)

func newInstagramAdapter(f *fakeMeta) (*InstagramAdapter, *[]string) {
	var tokens []string
	a := NewInstagramAdapter(func(token string) meta.Client {
		tokens = append(tokens, token)
		return f
	}, "default-token", "default-user", fastRetry())
	return a, &tokens
}

func preparedParams(t *testing.T, a *InstagramAdapter, p InstagramParams) InstagramParams {
	t.Helper()
	ms := 1
	p.SleepMs = &ms
	require.NoError(t, a.Prepare(&p))
	return p
}

func TestInstagramPrepare(t *testing.T) {
	a, _ := newInstagramAdapter(&fakeMeta{})

	p := InstagramParams{}
	require.NoError(t, a.Prepare(&p))
	assert.Equal(t, "default-user", p.IGUserID)
	assert.Equal(t, "default-token", p.AccessToken)
	assert.Equal(t, 10, p.MediaLimit)
	assert.Equal(t, 50, p.CommentsLimit)
	assert.Equal(t, 150, p.MaxUsers)
	require.NotNil(t, p.SleepMs)
	assert.Equal(t, 400, *p.SleepMs)
	assert.True(t, p.ShouldEnrich())
	assert.Empty(t, p.Redacted().AccessToken)

	off := 0
	unthrottled := InstagramParams{SleepMs: &off}
	require.NoError(t, a.Prepare(&unthrottled))
	assert.Equal(t, 0, *unthrottled.SleepMs)

	negative := -1
	assert.ErrorIs(t, a.Prepare(&InstagramParams{SleepMs: &negative}), model.ErrValidation)

	noCreds := NewInstagramAdapter(nil, "", "", fastRetry())
	err := noCreds.Prepare(&InstagramParams{})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "access token")
}

func TestInstagramCommenters_DedupesAndEnriches(t *testing.T) {
	f := &fakeMeta{
		media: []meta.Media{{ID: "m1"}, {ID: ""}, {ID: "m2"}},
		comments: map[string][]meta.Comment{
			"m1": {{Username: "@nailsbyjo", Text: "  price?  "}, {Username: "bob"}},
			"m2": {{Username: "NailsByJo"}, {Username: ""}, {Username: "cara"}},
		},
		profiles: map[string]*meta.BusinessProfile{
			"nailsbyjo": {Name: "Nails by Jo", Biography: "Book now", Website: "https://jo.test", Followers: 900},
		},
	}
	a, tokens := newInstagramAdapter(f)
	p := preparedParams(t, a, InstagramParams{AccessToken: "run-token"})

	got, err := collect(t, a.Commenters(context.Background(), p))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"run-token"}, *tokens)

	jo := got[0]
	assert.Equal(t, "nailsbyjo", jo.Handle)
	assert.Equal(t, "https://www.instagram.com/nailsbyjo/", jo.ProfileURL)
	assert.Equal(t, "price?", jo.Snippet)
	assert.Equal(t, "Nails by Jo", jo.Name)
	assert.Equal(t, "https://jo.test", jo.Website)
	assert.Equal(t, 900, jo.Followers)
	assert.Equal(t, []string{"ig_commenter"}, jo.Tags)

	assert.Equal(t, "bob", got[1].Handle)
	assert.Empty(t, got[1].Name)
	assert.Equal(t, "cara", got[2].Handle)
}

func TestInstagramCommenters_CapsUsers(t *testing.T) {
	f := &fakeMeta{
		media:    []meta.Media{{ID: "m1"}},
		comments: map[string][]meta.Comment{"m1": {{Username: "a"}, {Username: "b"}, {Username: "c"}}},
	}
	a, _ := newInstagramAdapter(f)
	enrich := false
	p := preparedParams(t, a, InstagramParams{MaxUsers: 2, Enrich: &enrich})

	got, err := collect(t, a.Commenters(context.Background(), p))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Empty(t, f.discovered)
}

func TestInstagramCommenters_EnrichmentFailureIsIgnored(t *testing.T) {
	f := &fakeMeta{
		media:       []meta.Media{{ID: "m1"}},
		comments:    map[string][]meta.Comment{"m1": {{Username: "a"}, {Username: "b"}}},
		discoverErr: resilience.NewTransientError(errors.New("meta: http 500"), 500),
	}
	a, _ := newInstagramAdapter(f)
	p := preparedParams(t, a, InstagramParams{})

	got, err := collect(t, a.Commenters(context.Background(), p))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestInstagramCommenters_MediaFailureIsFatal(t *testing.T) {
	f := &fakeMeta{mediaErr: resilience.NewPermanentError(errors.New("meta: Invalid OAuth access token."), 400)}
	a, _ := newInstagramAdapter(f)
	p := preparedParams(t, a, InstagramParams{})

	got, err := collect(t, a.Commenters(context.Background(), p))
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "instagram: list media")
}

func TestInstagramCommenters_CommentsFailureKeepsEarlierItems(t *testing.T) {
	f := &fakeMeta{
		media:       []meta.Media{{ID: "m1"}},
		commentsErr: resilience.NewPermanentError(errors.New("meta: http 403"), 403),
	}
	a, _ := newInstagramAdapter(f)
	p := preparedParams(t, a, InstagramParams{})

	_, err := collect(t, a.Commenters(context.Background(), p))
	require.Error(t, err)
	assert.True(t, resilience.IsPermanent(err))
}
