package preferences

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/textnorm"
)

const (
	CategoryCountries = "countries"
	CategoryLeagues   = "leagues"
	CategoryTeams     = "teams"
)

// Preferences holds the ids a user follows. Lists keep selection order.
type Preferences struct {
	Countries []string `json:"countries"`
	Leagues   []string `json:"leagues"`
	Teams     []string `json:"teams"`
}

func Empty() Preferences {
	return Preferences{Countries: []string{}, Leagues: []string{}, Teams: []string{}}
}

func (p Preferences) list(category string) ([]string, error) {
	switch category {
	case CategoryCountries:
		return p.Countries, nil
	case CategoryLeagues:
		return p.Leagues, nil
	case CategoryTeams:
		return p.Teams, nil
	}
	return nil, fmt.Errorf("unknown category %q", category)
}

func (p *Preferences) set(category string, ids []string) {
	switch category {
	case CategoryCountries:
		p.Countries = ids
	case CategoryLeagues:
		p.Leagues = ids
	case CategoryTeams:
		p.Teams = ids
	}
}

// Toggle adds id to the category when absent and removes it otherwise. p is not
// modified.
func Toggle(p Preferences, category, id string) (Preferences, error) {
	cur, err := p.list(category)
	if err != nil {
		return p, err
	}
	if id == "" {
		return p, fmt.Errorf("empty id")
	}
	next := make([]string, 0, len(cur)+1)
	found := false
	for _, v := range cur {
		if v == id {
			found = true
			continue
		}
		next = append(next, v)
	}
	if !found {
		next = append(next, id)
	}
	out := p.Clean()
	out.set(category, next)
	return out, nil
}

// Clean drops blanks and duplicates and never returns nil lists.
func (p Preferences) Clean() Preferences {
	return Preferences{Countries: dedupe(p.Countries), Leagues: dedupe(p.Leagues), Teams: dedupe(p.Teams)}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type Country struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

var staticCountries = []Country{
	{ID: "brasil", Name: "Brasil", Flag: "🇧🇷"},
	{ID: "espanha", Name: "Espanha", Flag: "🇪🇸"},
	{ID: "inglaterra", Name: "Inglaterra", Flag: "🏴󠁧󠁢󠁥󠁮󠁧󠁿"},
	{ID: "alemanha", Name: "Alemanha", Flag: "🇩🇪"},
	{ID: "italia", Name: "Itália", Flag: "🇮🇹"},
	{ID: "franca", Name: "França", Flag: "🇫🇷"},
	{ID: "argentina", Name: "Argentina", Flag: "🇦🇷"},
	{ID: "portugal", Name: "Portugal", Flag: "🇵🇹"},
}

// StaticCountries returns a copy of the selectable countries.
func StaticCountries() []Country {
	return append([]Country(nil), staticCountries...)
}

// Countries filters the static list by a normalized name query.
func Countries(query string) []Country {
	out := []Country{}
	for _, c := range staticCountries {
		if textnorm.Contains(c.Name, query) {
			out = append(out, c)
		}
	}
	return out
}

// EligibleLeagues returns the tournaments of the given season whose name, short name
// or id contains query. A tournament belongs to the season when its year matches or
// its name mentions the year.
func EligibleLeagues(tournaments []catalog.Tournament, year int, query string) []catalog.Tournament {
	y := strconv.Itoa(year)
	out := []catalog.Tournament{}
	for _, t := range tournaments {
		if t.Year != year && !strings.Contains(t.Name, y) {
			continue
		}
		if textnorm.Contains(t.Name, query) || textnorm.Contains(t.ShortName, query) || textnorm.Contains(t.ID, query) {
			out = append(out, t)
		}
	}
	return out
}

// Teams sorts by name in pt-BR collation and filters by a normalized name query.
func Teams(teams []catalog.Team, query string) []catalog.Team {
	out := []catalog.Team{}
	for _, t := range teams {
		if textnorm.Contains(t.Name, query) {
			out = append(out, t)
		}
	}
	// a Collator keeps scratch buffers, one per call
	col := collate.New(language.BrazilianPortuguese, collate.Loose)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}
