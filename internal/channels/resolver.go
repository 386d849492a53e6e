// Package channels maps free-text broadcaster names to catalog channels.
package channels

import (
	"strings"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

// Aliases maps a lowercased display-name variant to a canonical channel id.
type Aliases map[string]string

// DefaultAliases returns a fresh copy of the curated alias table.
func DefaultAliases() Aliases {
	return Aliases{
		"record":      "record",
		"tv globo":    "globo",
		"globo":       "globo",
		"band":        "band",
		"sbt":         "sbt",
		"rede-tv":     "redetv",
		"redetv":      "redetv",
		"redetv!":     "redetv",
		"tv-cultura":  "tvcultura",
		"tv cultura":  "tvcultura",
		"cultura":     "tvcultura",
		"sportv":      "sportv",
		"premiere":    "premiere",
		"cazetv":      "cazetv",
		"cazétv":      "cazetv",
		"caze tv":     "cazetv",
		"youtube":     "youtube",
		"hbo-max":     "max",
		"hbo max":     "max",
		"max":         "max",
		"disneyplus":  "disneyplus",
		"disney+":     "disneyplus",
		"disney plus": "disneyplus",
		"goat-tv":     "goattv",
		"goat tv":     "goattv",
		"goattv":      "goattv",
		"tnt":         "tnt",
		"tnt sports":  "tnt",
	}
}

// Merge returns a copy of a with extra layered on top. Keys of extra are
// lowercased and trimmed so they match the lookup rule.
func (a Aliases) Merge(extra map[string]string) Aliases {
	out := make(Aliases, len(a)+len(extra))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range extra {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// Resolver is safe for concurrent use; the alias table is never mutated after
// construction.
type Resolver struct {
	aliases Aliases
}

// NewResolver copies aliases. A nil table falls back to DefaultAliases.
func NewResolver(aliases Aliases) *Resolver {
	if aliases == nil {
		return &Resolver{aliases: DefaultAliases()}
	}
	return &Resolver{aliases: Aliases{}.Merge(aliases)}
}

// Canonical returns the canonical id for a display name. Matching is exact after
// trimming and lowercasing.
func (r *Resolver) Canonical(displayName string) (string, bool) {
	id, ok := r.aliases[strings.ToLower(strings.TrimSpace(displayName))]
	return id, ok
}

// Resolve finds the catalog channel for a display name. It reports false when the
// name has no alias or the catalog has no channel with that id or slug.
func (r *Resolver) Resolve(displayName string, catalogChannels []catalog.Channel) (catalog.Channel, bool) {
	if len(catalogChannels) == 0 {
		return catalog.Channel{}, false
	}
	id, ok := r.Canonical(displayName)
	if !ok {
		return catalog.Channel{}, false
	}
	return catalog.FindChannel(id, catalogChannels)
}

// Logo prefers the broadcast's own logo over the catalog one. Empty means text only.
func (r *Resolver) Logo(b catalog.Broadcast, catalogChannels []catalog.Channel) string {
	if b.Logo != "" {
		return b.Logo
	}
	if c, ok := r.Resolve(b.Channel, catalogChannels); ok {
		return c.Logo
	}
	return ""
}

// URL is the resolved channel's external link, or empty.
func (r *Resolver) URL(displayName string, catalogChannels []catalog.Channel) string {
	if c, ok := r.Resolve(displayName, catalogChannels); ok {
		return c.ThirdPartyURL
	}
	return ""
}

// Badge is a broadcast ready for display.
type Badge struct {
	Channel   string `json:"channel"`
	ChannelID string `json:"channelId,omitempty"`
	Logo      string `json:"logo,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Badges resolves every broadcast of a match in order.
func (r *Resolver) Badges(bs []catalog.Broadcast, catalogChannels []catalog.Channel) []Badge {
	out := make([]Badge, 0, len(bs))
	for _, b := range bs {
		badge := Badge{Channel: b.Channel, Logo: b.Logo}
		if c, ok := r.Resolve(b.Channel, catalogChannels); ok {
			badge.ChannelID = c.ID
			badge.URL = c.ThirdPartyURL
			if badge.Logo == "" {
				badge.Logo = c.Logo
			}
		}
		out = append(out, badge)
	}
	return out
}
