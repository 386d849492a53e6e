// Package matchurl encodes and decodes match page paths of the form
// /{tournament}/{dd-mm-yyyy}/{home}-vs-{away}/.
package matchurl

import (
	"fmt"
	"strings"
	"time"
)

const teamSep = "-vs-"

// Ref is a decoded match path.
type Ref struct {
	Tournament string `json:"tournament"`
	HomeTeam   string `json:"homeTeam"`
	AwayTeam   string `json:"awayTeam"`
	Date       string `json:"date"`     // yyyy-mm-dd
	DateSlug   string `json:"dateSlug"` // dd-mm-yyyy, verbatim from the path
}

// Key is the canonical match identity built by plain concatenation, so the
// zero-padding of DateSlug is significant.
func (r Ref) Key() string {
	return r.Tournament + "-" + r.HomeTeam + teamSep + r.AwayTeam + "-" + r.DateSlug
}

// Build uses the calendar day of t in t's own location.
func Build(tournament, home, away string, t time.Time) string {
	y, m, d := t.Date()
	return path(tournament, home, away, fmt.Sprintf("%02d-%02d-%04d", d, int(m), y))
}

// BuildFromISO reorders the date part of an ISO string (anything before 'T')
// textually. It reports false when that part is not three dash-separated fields.
func BuildFromISO(tournament, home, away, iso string) (string, bool) {
	datePart, _, _ := strings.Cut(iso, "T")
	parts := strings.Split(datePart, "-")
	if len(parts) != 3 {
		return "", false
	}
	return path(tournament, home, away, parts[2]+"-"+parts[1]+"-"+parts[0]), true
}

func path(tournament, home, away, dateSlug string) string {
	return "/" + tournament + "/" + dateSlug + "/" + home + teamSep + away + "/"
}

// Parse decodes a match path. Paths with the teams before the date are accepted too.
func Parse(p string) (Ref, bool) {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	segs := strings.Split(p, "/")
	if len(segs) != 3 || segs[0] == "" {
		return Ref{}, false
	}
	if ref, ok := decode(segs[0], segs[2], segs[1]); ok {
		return ref, true
	}
	return decode(segs[0], segs[1], segs[2])
}

func decode(tournament, teams, dateSlug string) (Ref, bool) {
	sides := strings.Split(teams, teamSep)
	if len(sides) != 2 || sides[0] == "" || sides[1] == "" {
		return Ref{}, false
	}
	d := strings.Split(dateSlug, "-")
	if len(d) != 3 || !digits(d[0], 2) || !digits(d[1], 2) || !digits(d[2], 4) {
		return Ref{}, false
	}
	return Ref{
		Tournament: tournament,
		HomeTeam:   sides[0],
		AwayTeam:   sides[1],
		Date:       d[2] + "-" + d[1] + "-" + d[0],
		DateSlug:   dateSlug,
	}, true
}

func digits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
