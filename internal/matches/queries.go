package matches

import (
	"sort"
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/matchurl"
)

const (
	DefaultTeamLimit       = 5
	DefaultTournamentLimit = 10
)

// ByTeam returns the matches where either side is teamRef or the team it resolves to.
func ByTeam(snap catalog.Snapshot, idx *catalog.Index, teamRef string) []catalog.Match {
	id := teamRef
	if t, ok := idx.Team(teamRef); ok {
		id = t.ID
	}
	out := make([]catalog.Match, 0)
	for _, m := range snap.Matches {
		if m.HomeTeam == teamRef || m.AwayTeam == teamRef || m.HomeTeam == id || m.AwayTeam == id {
			out = append(out, m)
		}
	}
	return out
}

// ByTournament matches the raw reference or the id it resolves to.
func ByTournament(snap catalog.Snapshot, idx *catalog.Index, ref string) []catalog.Match {
	id := ref
	if t, ok := idx.Tournament(ref); ok {
		id = t.ID
	}
	out := make([]catalog.Match, 0)
	for _, m := range snap.Matches {
		if m.Tournament == ref || m.Tournament == id {
			out = append(out, m)
		}
	}
	return out
}

// Upcoming keeps matches that have not kicked off yet or are live, soonest first.
func Upcoming(ms []catalog.Match, now time.Time, limit int) []catalog.Match {
	out := make([]catalog.Match, 0, len(ms))
	for _, m := range ms {
		if m.IsLive || !m.MatchDate.Before(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MatchDate.Before(out[b].MatchDate) })
	return truncate(out, limit)
}

// Recent keeps finished matches, most recent first.
func Recent(ms []catalog.Match, now time.Time, limit int) []catalog.Match {
	out := make([]catalog.Match, 0, len(ms))
	for _, m := range ms {
		if !m.IsLive && m.MatchDate.Before(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].MatchDate.After(out[b].MatchDate) })
	return truncate(out, limit)
}

func Live(snap catalog.Snapshot) []catalog.Match {
	out := make([]catalog.Match, 0)
	for _, m := range snap.Matches {
		if m.IsLive {
			out = append(out, m)
		}
	}
	return out
}

// TeamsInTournament lists teams that declare the tournament or play in one of its
// matches, in catalog order.
func TeamsInTournament(snap catalog.Snapshot, idx *catalog.Index, ref string) []catalog.Team {
	id := ref
	if t, ok := idx.Tournament(ref); ok {
		id = t.ID
	}
	playing := make(map[string]bool)
	for _, m := range snap.Matches {
		if m.Tournament == id || m.Tournament == ref {
			playing[m.HomeTeam] = true
			playing[m.AwayTeam] = true
		}
	}
	out := make([]catalog.Team, 0)
	for _, t := range snap.Teams {
		if playing[t.ID] || (t.Slug != "" && playing[t.Slug]) || contains(t.Tournaments, id) {
			out = append(out, t)
		}
	}
	return out
}

// FindByRef locates the match a decoded page path points at. The canonical key is
// tried as a match id first; otherwise tournament, both teams and the local calendar
// day must agree.
func FindByRef(snap catalog.Snapshot, idx *catalog.Index, ref matchurl.Ref, loc *time.Location) (catalog.Match, bool) {
	if m, ok := snap.MatchByID(ref.Key()); ok {
		return m, true
	}
	if loc == nil {
		loc = time.Local
	}
	for _, m := range snap.Matches {
		if !sameRef(idx.Tournament, m.Tournament, ref.Tournament) {
			continue
		}
		if !sameTeam(idx, m.HomeTeam, ref.HomeTeam) || !sameTeam(idx, m.AwayTeam, ref.AwayTeam) {
			continue
		}
		if m.MatchDate.In(loc).Format("2006-01-02") == ref.Date {
			return m, true
		}
	}
	return catalog.Match{}, false
}

func sameRef(lookup func(string) (catalog.Tournament, bool), stored, want string) bool {
	if stored == want {
		return true
	}
	t, ok := lookup(want)
	return ok && t.ID == stored
}

func sameTeam(idx *catalog.Index, stored, want string) bool {
	if stored == want {
		return true
	}
	t, ok := idx.Team(want)
	return ok && t.ID == stored
}

func truncate(ms []catalog.Match, limit int) []catalog.Match {
	if limit > 0 && len(ms) > limit {
		return ms[:limit]
	}
	return ms
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
