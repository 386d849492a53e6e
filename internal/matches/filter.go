package matches

import (
	"sort"
	"strings"
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/textnorm"
)

// All is the team and tournament value meaning "no restriction".
const All = "todos"

// State is everything that decides which matches are visible. Transitions return a
// new State; the receiver is never modified.
type State struct {
	CurrentDate   time.Time
	Team          string
	Tournament    string
	Search        string
	UseDateFilter bool
	Location      *time.Location
}

// NewState starts on today's matches with no team, tournament or search restriction.
func NewState(now time.Time, loc *time.Location) State {
	if loc == nil {
		loc = time.Local
	}
	return State{
		CurrentDate:   now.In(loc),
		Team:          All,
		Tournament:    All,
		UseDateFilter: true,
		Location:      loc,
	}
}

// SelectTeam picks a team. A specific team shows all of its matches regardless of
// date, so the date filter is switched off; going back to All switches it on.
func (s State) SelectTeam(team string) State {
	s.Team = team
	s.UseDateFilter = team == All
	return s
}

func (s State) SelectTournament(tournament string) State {
	s.Tournament = tournament
	return s
}

func (s State) SetSearch(q string) State {
	s.Search = q
	return s
}

// NextDay and PrevDay do nothing while the date filter is off.
func (s State) NextDay() State { return s.shiftDays(1) }
func (s State) PrevDay() State { return s.shiftDays(-1) }

func (s State) shiftDays(n int) State {
	if !s.UseDateFilter {
		return s
	}
	s.CurrentDate = s.CurrentDate.In(s.location()).AddDate(0, 0, n)
	return s
}

func (s State) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Group is the matches of one tournament. Info is nil when the tournament is not in
// the catalog; Name then falls back to the raw reference.
type Group struct {
	Tournament string              `json:"tournament"`
	Info       *catalog.Tournament `json:"info,omitempty"`
	Name       string              `json:"name"`
	Matches    []catalog.Match     `json:"matches"`
}

// Filter runs the date, tournament, team and search stages over the snapshot, then
// groups the survivors by tournament in first-seen order with each group sorted by
// kickoff. It never modifies snap and returns an empty, non-nil slice when nothing
// is visible.
func Filter(snap catalog.Snapshot, st State) []Group {
	return FilterIndexed(snap, catalog.NewIndex(snap), st)
}

// FilterIndexed is Filter with a prebuilt index for snap.
func FilterIndexed(snap catalog.Snapshot, idx *catalog.Index, st State) []Group {
	loc := st.location()
	wantY, wantM, wantD := st.CurrentDate.In(loc).Date()
	term := ""
	if st.Search != "" {
		term = textnorm.Normalize(st.Search)
	}

	visible := make([]catalog.Match, 0, len(snap.Matches))
	for _, m := range snap.Matches {
		if st.UseDateFilter {
			y, mo, d := m.MatchDate.In(loc).Date()
			if y != wantY || mo != wantM || d != wantD {
				continue
			}
		}
		if st.Tournament != All && m.Tournament != st.Tournament {
			continue
		}
		if st.Team != All && !playsIn(idx, m, st.Team) {
			continue
		}
		if term != "" && !searchHit(idx, m, term) {
			continue
		}
		visible = append(visible, m)
	}
	return group(idx, visible)
}

// playsIn matches the team filter against either side's raw reference or the slug
// of the team it resolves to. Matches where neither side resolves are dropped.
func playsIn(idx *catalog.Index, m catalog.Match, team string) bool {
	home, homeOK := idx.Team(m.HomeTeam)
	away, awayOK := idx.Team(m.AwayTeam)
	if !homeOK && !awayOK {
		return false
	}
	return m.HomeTeam == team || m.AwayTeam == team ||
		(homeOK && home.Slug != "" && home.Slug == team) ||
		(awayOK && away.Slug != "" && away.Slug == team)
}

// searchHit ORs the term over both team names, the tournament name and the joined
// broadcaster names. Unresolved references contribute an empty string.
func searchHit(idx *catalog.Index, m catalog.Match, term string) bool {
	var home, away, tournament string
	if t, ok := idx.Team(m.HomeTeam); ok {
		home = textnorm.Normalize(t.Name)
	}
	if t, ok := idx.Team(m.AwayTeam); ok {
		away = textnorm.Normalize(t.Name)
	}
	if t, ok := idx.Tournament(m.Tournament); ok {
		tournament = textnorm.Normalize(t.Name)
	}
	names := make([]string, 0, len(m.Broadcasting))
	for _, b := range m.Broadcasting {
		names = append(names, textnorm.Normalize(b.Channel))
	}
	return strings.Contains(home, term) ||
		strings.Contains(away, term) ||
		strings.Contains(tournament, term) ||
		strings.Contains(strings.Join(names, " "), term)
}

func group(idx *catalog.Index, ms []catalog.Match) []Group {
	groups := make([]Group, 0)
	pos := make(map[string]int)
	for _, m := range ms {
		i, ok := pos[m.Tournament]
		if !ok {
			g := Group{Tournament: m.Tournament, Name: m.Tournament}
			if t, found := idx.Tournament(m.Tournament); found {
				info := t
				g.Info = &info
				g.Name = idx.TournamentName(m.Tournament)
			}
			groups = append(groups, g)
			i = len(groups) - 1
			pos[m.Tournament] = i
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}
	for i := range groups {
		g := groups[i].Matches
		sort.SliceStable(g, func(a, b int) bool { return g[a].MatchDate.Before(g[b].MatchDate) })
	}
	return groups
}

// Count is the number of matches across groups.
func Count(groups []Group) int {
	n := 0
	for _, g := range groups {
		n += len(g.Matches)
	}
	return n
}
