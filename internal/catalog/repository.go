package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

// Repository is the data access facade over the catalog tables. Lists come back in
// insertion order so id-or-slug lookups keep first-match-wins semantics.
type Repository struct{ db *gorm.DB }

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

// ----- rows -----

type matchRow struct {
	ID           string      `gorm:"column:id;primaryKey"`
	Tournament   string      `gorm:"column:tournament"`
	HomeTeam     string      `gorm:"column:home_team"`
	AwayTeam     string      `gorm:"column:away_team"`
	MatchDate    time.Time   `gorm:"column:match_date"`
	IsLive       bool        `gorm:"column:is_live"`
	ScoreHome    *int        `gorm:"column:score_home"`
	ScoreAway    *int        `gorm:"column:score_away"`
	Broadcasting []Broadcast `gorm:"column:broadcasting;serializer:json"`
	MatchURL     string      `gorm:"column:match_url"`
	Round        string      `gorm:"column:round"`
	Status       string      `gorm:"column:status"`
	Venue        *Venue      `gorm:"column:venue;serializer:json"`
}

func (matchRow) TableName() string { return "matches" }

func toMatchRow(m Match) matchRow {
	r := matchRow{
		ID:           m.ID,
		Tournament:   m.Tournament,
		HomeTeam:     m.HomeTeam,
		AwayTeam:     m.AwayTeam,
		MatchDate:    m.MatchDate,
		IsLive:       m.IsLive,
		Broadcasting: m.Broadcasting,
		MatchURL:     m.MatchURL,
		Round:        m.Round,
		Status:       m.Status,
		Venue:        m.Venue,
	}
	if r.Broadcasting == nil {
		r.Broadcasting = []Broadcast{}
	}
	if m.Score != nil {
		h, a := m.Score.Home, m.Score.Away
		r.ScoreHome, r.ScoreAway = &h, &a
	}
	return r
}

func (r matchRow) toMatch() Match {
	m := Match{
		ID:           r.ID,
		Tournament:   r.Tournament,
		HomeTeam:     r.HomeTeam,
		AwayTeam:     r.AwayTeam,
		MatchDate:    r.MatchDate,
		IsLive:       r.IsLive,
		Broadcasting: r.Broadcasting,
		MatchURL:     r.MatchURL,
		Round:        r.Round,
		Status:       r.Status,
		Venue:        r.Venue,
	}
	if m.Broadcasting == nil {
		m.Broadcasting = []Broadcast{}
	}
	if r.ScoreHome != nil && r.ScoreAway != nil {
		m.Score = &Score{Home: *r.ScoreHome, Away: *r.ScoreAway}
	}
	return m
}

type teamRow struct {
	ID          string   `gorm:"column:id;primaryKey"`
	Slug        string   `gorm:"column:slug"`
	Name        string   `gorm:"column:name"`
	Logo        string   `gorm:"column:logo"`
	Tournaments []string `gorm:"column:tournaments;serializer:json"`
}

func (teamRow) TableName() string { return "teams" }

type tournamentRow struct {
	ID        string `gorm:"column:id;primaryKey"`
	Slug      string `gorm:"column:slug"`
	Name      string `gorm:"column:name"`
	ShortName string `gorm:"column:short_name"`
	Logo      string `gorm:"column:logo"`
	Year      int    `gorm:"column:year"`
	Status    string `gorm:"column:status"`
}

func (tournamentRow) TableName() string { return "tournaments" }

type channelRow struct {
	ID            string `gorm:"column:id;primaryKey"`
	Slug          string `gorm:"column:slug"`
	Name          string `gorm:"column:name"`
	Logo          string `gorm:"column:logo"`
	ThirdPartyURL string `gorm:"column:third_party_url"`
}

func (channelRow) TableName() string { return "channels" }

type newsRow struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Title     string    `gorm:"column:title"`
	Subtitle  string    `gorm:"column:subtitle"`
	ImageURL  string    `gorm:"column:image_url"`
	Category  string    `gorm:"column:category"`
	SourceURL string    `gorm:"column:source_url"`
	HTMLURL   string    `gorm:"column:html_url"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (newsRow) TableName() string { return "news" }

// ----- reads -----

func (r *Repository) ListMatches(ctx context.Context) ([]Match, error) {
	var rows []matchRow
	if err := r.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	out := make([]Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toMatch())
	}
	return out, nil
}

func (r *Repository) GetMatch(ctx context.Context, id string) (Match, error) {
	var row matchRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("get match: %w", err)
	}
	return row.toMatch(), nil
}

func (r *Repository) ListTeams(ctx context.Context) ([]Team, error) {
	var rows []teamRow
	if err := r.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	out := make([]Team, 0, len(rows))
	for _, row := range rows {
		out = append(out, Team(row))
	}
	return out, nil
}

func (r *Repository) ListTournaments(ctx context.Context) ([]Tournament, error) {
	var rows []tournamentRow
	if err := r.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	out := make([]Tournament, 0, len(rows))
	for _, row := range rows {
		out = append(out, Tournament(row))
	}
	return out, nil
}

func (r *Repository) ListChannels(ctx context.Context) ([]Channel, error) {
	var rows []channelRow
	if err := r.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	out := make([]Channel, 0, len(rows))
	for _, row := range rows {
		out = append(out, Channel(row))
	}
	return out, nil
}

// ListNews returns the newest items first.
func (r *Repository) ListNews(ctx context.Context) ([]News, error) {
	var rows []newsRow
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	out := make([]News, 0, len(rows))
	for _, row := range rows {
		out = append(out, News(row))
	}
	return out, nil
}

// LoadSnapshot reads every collection the filter engine needs inside one read
// transaction so the four lists are mutually consistent.
func (r *Repository) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &Repository{db: tx}
		var err error
		if snap.Matches, err = txRepo.ListMatches(ctx); err != nil {
			return err
		}
		if snap.Teams, err = txRepo.ListTeams(ctx); err != nil {
			return err
		}
		if snap.Tournaments, err = txRepo.ListTournaments(ctx); err != nil {
			return err
		}
		snap.Channels, err = txRepo.ListChannels(ctx)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ----- writes -----

func upsert[T any](ctx context.Context, db *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 200).Error
}

func (r *Repository) UpsertMatches(ctx context.Context, ms []Match) error {
	rows := make([]matchRow, 0, len(ms))
	for i, m := range ms {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("match %d (%s): %w", i, m.ID, err)
		}
		rows = append(rows, toMatchRow(m))
	}
	if err := upsert(ctx, r.db, rows); err != nil {
		return fmt.Errorf("upsert matches: %w", err)
	}
	return nil
}

func (r *Repository) UpsertTeams(ctx context.Context, ts []Team) error {
	rows := make([]teamRow, 0, len(ts))
	for _, t := range ts {
		row := teamRow(t)
		if row.Tournaments == nil {
			row.Tournaments = []string{}
		}
		rows = append(rows, row)
	}
	if err := upsert(ctx, r.db, rows); err != nil {
		return fmt.Errorf("upsert teams: %w", err)
	}
	return nil
}

func (r *Repository) UpsertTournaments(ctx context.Context, ts []Tournament) error {
	rows := make([]tournamentRow, 0, len(ts))
	for _, t := range ts {
		rows = append(rows, tournamentRow(t))
	}
	if err := upsert(ctx, r.db, rows); err != nil {
		return fmt.Errorf("upsert tournaments: %w", err)
	}
	return nil
}

func (r *Repository) UpsertChannels(ctx context.Context, cs []Channel) error {
	rows := make([]channelRow, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, channelRow(c))
	}
	if err := upsert(ctx, r.db, rows); err != nil {
		return fmt.Errorf("upsert channels: %w", err)
	}
	return nil
}

func (r *Repository) UpsertNews(ctx context.Context, ns []News) error {
	rows := make([]newsRow, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, newsRow(n))
	}
	if err := upsert(ctx, r.db, rows); err != nil {
		return fmt.Errorf("upsert news: %w", err)
	}
	return nil
}

func (r *Repository) DeleteMatch(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&matchRow{})
	if res.Error != nil {
		return fmt.Errorf("delete match: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteAllMatches(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&matchRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete matches: %w", res.Error)
	}
	return res.RowsAffected, nil
}
