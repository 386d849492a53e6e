package matches

import (
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/channels"
	"github.com/NetoRibeiro/ovpfh-v2/internal/matchurl"
)

// View is a match with its references resolved for display.
type View struct {
	ID             string           `json:"id"`
	Tournament     string           `json:"tournament"`
	TournamentName string           `json:"tournamentName"`
	HomeTeam       string           `json:"homeTeam"`
	HomeName       string           `json:"homeName"`
	HomeLogo       string           `json:"homeLogo,omitempty"`
	AwayTeam       string           `json:"awayTeam"`
	AwayName       string           `json:"awayName"`
	AwayLogo       string           `json:"awayLogo,omitempty"`
	MatchDate      time.Time        `json:"matchDate"`
	IsLive         bool             `json:"isLive"`
	Score          *catalog.Score   `json:"score"`
	Round          string           `json:"round,omitempty"`
	Status         string           `json:"status,omitempty"`
	Venue          *catalog.Venue   `json:"venue,omitempty"`
	URL            string           `json:"url"`
	Channels       []channels.Badge `json:"channels"`
}

// GroupView is a Group ready for the JSON API.
type GroupView struct {
	Tournament string `json:"tournament"`
	Name       string `json:"name"`
	ShortName  string `json:"shortName,omitempty"`
	Logo       string `json:"logo,omitempty"`
	Matches    []View `json:"matches"`
}

// Presenter turns engine output into views for one snapshot.
type Presenter struct {
	snap     catalog.Snapshot
	idx      *catalog.Index
	resolver *channels.Resolver
	loc      *time.Location
}

func NewPresenter(snap catalog.Snapshot, idx *catalog.Index, resolver *channels.Resolver, loc *time.Location) *Presenter {
	if idx == nil {
		idx = catalog.NewIndex(snap)
	}
	if resolver == nil {
		resolver = channels.NewResolver(nil)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Presenter{snap: snap, idx: idx, resolver: resolver, loc: loc}
}

// URL is the stored override when present, else the page path built from the raw
// references and the local kickoff day.
func (p *Presenter) URL(m catalog.Match) string {
	if m.MatchURL != "" {
		return m.MatchURL
	}
	return matchurl.Build(m.Tournament, m.HomeTeam, m.AwayTeam, m.MatchDate.In(p.loc))
}

func (p *Presenter) Match(m catalog.Match) View {
	v := View{
		ID:             m.ID,
		Tournament:     m.Tournament,
		TournamentName: p.idx.TournamentName(m.Tournament),
		HomeTeam:       m.HomeTeam,
		HomeName:       p.idx.TeamName(m.HomeTeam),
		AwayTeam:       m.AwayTeam,
		AwayName:       p.idx.TeamName(m.AwayTeam),
		MatchDate:      m.MatchDate,
		IsLive:         m.IsLive,
		Score:          m.Score,
		Round:          m.Round,
		Status:         m.Status,
		Venue:          m.Venue,
		URL:            p.URL(m),
		Channels:       p.resolver.Badges(m.Broadcasting, p.snap.Channels),
	}
	if t, ok := p.idx.Team(m.HomeTeam); ok {
		v.HomeLogo = t.Logo
	}
	if t, ok := p.idx.Team(m.AwayTeam); ok {
		v.AwayLogo = t.Logo
	}
	return v
}

func (p *Presenter) Matches(ms []catalog.Match) []View {
	out := make([]View, 0, len(ms))
	for _, m := range ms {
		out = append(out, p.Match(m))
	}
	return out
}

func (p *Presenter) Groups(gs []Group) []GroupView {
	out := make([]GroupView, 0, len(gs))
	for _, g := range gs {
		gv := GroupView{Tournament: g.Tournament, Name: g.Name, Matches: p.Matches(g.Matches)}
		if g.Info != nil {
			gv.ShortName = g.Info.ShortName
			gv.Logo = g.Info.Logo
		}
		out = append(out, gv)
	}
	return out
}
