package catalog

// FindTeam returns the first team whose id or slug equals idOrSlug. Empty ids and
// slugs never match.
func FindTeam(idOrSlug string, teams []Team) (Team, bool) {
	for _, t := range teams {
		if (t.ID != "" && t.ID == idOrSlug) || (t.Slug != "" && t.Slug == idOrSlug) {
			return t, true
		}
	}
	return Team{}, false
}

// FindTournament returns the first tournament whose id or slug equals idOrSlug.
func FindTournament(idOrSlug string, tournaments []Tournament) (Tournament, bool) {
	for _, t := range tournaments {
		if (t.ID != "" && t.ID == idOrSlug) || (t.Slug != "" && t.Slug == idOrSlug) {
			return t, true
		}
	}
	return Tournament{}, false
}

// FindChannel returns the first channel whose id or slug equals idOrSlug.
func FindChannel(idOrSlug string, channels []Channel) (Channel, bool) {
	for _, c := range channels {
		if (c.ID != "" && c.ID == idOrSlug) || (c.Slug != "" && c.Slug == idOrSlug) {
			return c, true
		}
	}
	return Channel{}, false
}

// Index answers id-or-slug lookups for one snapshot in constant time. A key maps to
// the first record (in snapshot order) whose id or slug equals it, so results agree
// with FindTeam and FindTournament even when ids or slugs collide.
type Index struct {
	teams       map[string]int
	tournaments map[string]int
	snap        Snapshot
}

func NewIndex(snap Snapshot) *Index {
	idx := &Index{
		teams:       make(map[string]int, len(snap.Teams)*2),
		tournaments: make(map[string]int, len(snap.Tournaments)*2),
		snap:        snap,
	}
	for i, t := range snap.Teams {
		addKey(idx.teams, t.ID, i)
		addKey(idx.teams, t.Slug, i)
	}
	for i, t := range snap.Tournaments {
		addKey(idx.tournaments, t.ID, i)
		addKey(idx.tournaments, t.Slug, i)
	}
	return idx
}

func addKey(m map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, seen := m[key]; !seen {
		m[key] = i
	}
}

func (x *Index) Team(idOrSlug string) (Team, bool) {
	i, ok := x.teams[idOrSlug]
	if !ok {
		return Team{}, false
	}
	return x.snap.Teams[i], true
}

func (x *Index) Tournament(idOrSlug string) (Tournament, bool) {
	i, ok := x.tournaments[idOrSlug]
	if !ok {
		return Tournament{}, false
	}
	return x.snap.Tournaments[i], true
}

// TeamName falls back to the raw reference when the team is unknown.
func (x *Index) TeamName(ref string) string {
	if t, ok := x.Team(ref); ok && t.Name != "" {
		return t.Name
	}
	return ref
}

// TournamentName falls back to the raw reference when the tournament is unknown.
func (x *Index) TournamentName(ref string) string {
	if t, ok := x.Tournament(ref); ok && t.Name != "" {
		return t.Name
	}
	return ref
}
