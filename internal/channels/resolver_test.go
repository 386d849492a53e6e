package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

func TestResolve_TrimsAndLowercases(t *testing.T) {
	r := NewResolver(nil)
	got, ok := r.Resolve("TV Globo ", []catalog.Channel{{ID: "globo", Logo: "g.png"}})
	require.True(t, ok)
	assert.Equal(t, catalog.Channel{ID: "globo", Logo: "g.png"}, got)
}

func TestResolve_NoFuzzyMatching(t *testing.T) {
	r := NewResolver(nil)
	cat := []catalog.Channel{{ID: "globo"}, {ID: "sportv"}}
	for _, name := range []string{"Unknown Channel", "tvglobo", "sportv 2", "globo."} {
		_, ok := r.Resolve(name, cat)
		assert.False(t, ok, name)
	}
}

func TestResolve_EmptyCatalog(t *testing.T) {
	_, ok := NewResolver(nil).Resolve("globo", nil)
	assert.False(t, ok)
}

func TestResolve_MatchesSlugFirstWins(t *testing.T) {
	r := NewResolver(nil)
	cat := []catalog.Channel{
		{ID: "rede-tv-oficial", Slug: "redetv", Logo: "first.png"},
		{ID: "redetv", Logo: "second.png"},
	}
	got, ok := r.Resolve("RedeTV!", cat)
	require.True(t, ok)
	assert.Equal(t, "first.png", got.Logo)
}

func TestResolve_AccentedAlias(t *testing.T) {
	r := NewResolver(nil)
	got, ok := r.Resolve("CazéTV", []catalog.Channel{{ID: "cazetv"}})
	require.True(t, ok)
	assert.Equal(t, "cazetv", got.ID)
}

func TestNewResolver_InjectedTable(t *testing.T) {
	r := NewResolver(DefaultAliases().Merge(map[string]string{" Canal GOAT ": "goattv"}))
	_, ok := r.Resolve("canal goat", []catalog.Channel{{ID: "goattv"}})
	assert.True(t, ok)

	only := NewResolver(Aliases{"x": "globo"})
	_, ok = only.Resolve("globo", []catalog.Channel{{ID: "globo"}})
	assert.False(t, ok, "injected table replaces the default one")
}

func TestLogoAndURL(t *testing.T) {
	r := NewResolver(nil)
	cat := []catalog.Channel{{ID: "globo", Logo: "g.png", ThirdPartyURL: "https://globoplay.globo.com"}}

	assert.Equal(t, "own.png", r.Logo(catalog.Broadcast{Channel: "globo", Logo: "own.png"}, cat))
	assert.Equal(t, "g.png", r.Logo(catalog.Broadcast{Channel: "Globo"}, cat))
	assert.Equal(t, "", r.Logo(catalog.Broadcast{Channel: "Rádio"}, cat))
	assert.Equal(t, "https://globoplay.globo.com", r.URL("tv globo", cat))
	assert.Equal(t, "", r.URL("band", cat))
}

func TestBadges(t *testing.T) {
	r := NewResolver(nil)
	cat := []catalog.Channel{{ID: "globo", Logo: "g.png", ThirdPartyURL: "u"}}
	got := r.Badges([]catalog.Broadcast{{Channel: "TV Globo"}, {Channel: "Rádio Bandeirantes"}}, cat)
	assert.Equal(t, []Badge{
		{Channel: "TV Globo", ChannelID: "globo", Logo: "g.png", URL: "u"},
		{Channel: "Rádio Bandeirantes"},
	}, got)
	assert.NotNil(t, r.Badges(nil, cat))
}
