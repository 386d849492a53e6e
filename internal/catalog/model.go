package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Score is only present when both sides are known.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Broadcast is one channel airing a match. Logo overrides the channel catalog logo.
type Broadcast struct {
	Channel string `json:"channel"`
	Logo    string `json:"logo,omitempty"`
}

type Venue struct {
	Name  string `json:"name,omitempty"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

type Match struct {
	ID           string      `json:"id"`
	Tournament   string      `json:"tournament"`
	HomeTeam     string      `json:"homeTeam"`
	AwayTeam     string      `json:"awayTeam"`
	MatchDate    time.Time   `json:"matchDate"`
	IsLive       bool        `json:"isLive"`
	Score        *Score      `json:"score"`
	Broadcasting []Broadcast `json:"broadcasting"`
	MatchURL     string      `json:"matchURL,omitempty"`
	Round        string      `json:"round,omitempty"`
	Status       string      `json:"status,omitempty"`
	Venue        *Venue      `json:"venue,omitempty"`
}

var ErrMixedScore = errors.New("score must set both home and away or neither")

// wireScore accepts the stored shape {"home": null, "away": null}.
type wireScore struct {
	Home *int `json:"home"`
	Away *int `json:"away"`
}

func (s *wireScore) toScore() (*Score, error) {
	if s == nil || (s.Home == nil && s.Away == nil) {
		return nil, nil
	}
	if s.Home == nil || s.Away == nil {
		return nil, ErrMixedScore
	}
	if *s.Home < 0 || *s.Away < 0 {
		return nil, fmt.Errorf("negative score %d-%d", *s.Home, *s.Away)
	}
	return &Score{Home: *s.Home, Away: *s.Away}, nil
}

func (m *Match) UnmarshalJSON(b []byte) error {
	type alias Match
	var raw struct {
		alias
		MatchDate *string    `json:"matchDate"`
		Score     *wireScore `json:"score"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := Match(raw.alias)
	if raw.MatchDate != nil && *raw.MatchDate != "" {
		t, err := ParseMatchDate(*raw.MatchDate)
		if err != nil {
			return fmt.Errorf("match %s: %w", out.ID, err)
		}
		out.MatchDate = t
	}
	score, err := raw.Score.toScore()
	if err != nil {
		return fmt.Errorf("match %s: %w", out.ID, err)
	}
	out.Score = score
	if out.Broadcasting == nil {
		out.Broadcasting = []Broadcast{}
	}
	*m = out
	return nil
}

var matchDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseMatchDate accepts ISO-8601 with or without an offset. Values without an offset
// are read in time.Local, the same way a browser reads them.
func ParseMatchDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for i, layout := range matchDateLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized match date %q", s)
}

// Validate checks the fields every stored match needs.
func (m Match) Validate() error {
	switch {
	case strings.TrimSpace(m.ID) == "":
		return errors.New("id is required")
	case strings.TrimSpace(m.Tournament) == "":
		return errors.New("tournament is required")
	case strings.TrimSpace(m.HomeTeam) == "" || strings.TrimSpace(m.AwayTeam) == "":
		return errors.New("home and away teams are required")
	}
	if m.Score != nil && (m.Score.Home < 0 || m.Score.Away < 0) {
		return fmt.Errorf("negative score %d-%d", m.Score.Home, m.Score.Away)
	}
	return nil
}

type Team struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug,omitempty"`
	Name        string   `json:"name"`
	Logo        string   `json:"logo,omitempty"`
	Tournaments []string `json:"tournaments,omitempty"`
}

type Tournament struct {
	ID        string `json:"id"`
	Slug      string `json:"slug,omitempty"`
	Name      string `json:"name"`
	ShortName string `json:"shortName,omitempty"`
	Logo      string `json:"logo,omitempty"`
	Year      int    `json:"year,omitempty"`
	Status    string `json:"status,omitempty"`
}

// DisplayName prefers the short name used on chips and grids.
func (t Tournament) DisplayName() string {
	switch {
	case t.ShortName != "":
		return t.ShortName
	case t.Name != "":
		return t.Name
	}
	return t.ID
}

type Channel struct {
	ID            string `json:"id"`
	Slug          string `json:"slug,omitempty"`
	Name          string `json:"name,omitempty"`
	Logo          string `json:"logo"`
	ThirdPartyURL string `json:"thirdpartyurl,omitempty"`
}

type News struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Category  string    `json:"category,omitempty"`
	SourceURL string    `json:"source_url,omitempty"`
	HTMLURL   string    `json:"html_url,omitempty"`
	UpdatedAt time.Time `json:"last_updated_date_time"`
}

// Snapshot is one consistent copy of every collection the engine reads.
// Consumers must treat it as immutable.
type Snapshot struct {
	Matches     []Match      `json:"matches"`
	Teams       []Team       `json:"teams"`
	Tournaments []Tournament `json:"tournaments"`
	Channels    []Channel    `json:"channels"`
}

// MatchByID returns the first match with the given id.
func (s Snapshot) MatchByID(id string) (Match, bool) {
	for _, m := range s.Matches {
		if m.ID == id {
			return m, true
		}
	}
	return Match{}, false
}
