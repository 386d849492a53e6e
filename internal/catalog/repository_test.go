package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/NetoRibeiro/ovpfh-v2/internal/db"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	g, err := db.Gorm(sqlDB)
	if err != nil {
		t.Fatalf("gorm: %v", err)
	}
	return NewRepository(g)
}

func TestRepository_MatchRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	when := time.Date(2026, 1, 18, 16, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	in := []Match{
		{ID: "m2", Tournament: "t", HomeTeam: "a", AwayTeam: "b", MatchDate: when.Add(time.Hour), Score: &Score{Home: 2, Away: 1},
			Broadcasting: []Broadcast{{Channel: "TV Globo"}, {Channel: "CazéTV", Logo: "x.png"}}, Venue: &Venue{Name: "MorumBIS"}},
		{ID: "m1", Tournament: "t", HomeTeam: "b", AwayTeam: "a", MatchDate: when},
	}
	if err := repo.UpsertMatches(ctx, in); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.ListMatches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m1" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[0].Score == nil || *got[0].Score != (Score{Home: 2, Away: 1}) {
		t.Fatalf("score = %+v", got[0].Score)
	}
	if got[1].Score != nil {
		t.Fatalf("expected nil score, got %+v", got[1].Score)
	}
	if len(got[0].Broadcasting) != 2 || got[0].Broadcasting[1].Logo != "x.png" {
		t.Fatalf("broadcasting = %+v", got[0].Broadcasting)
	}
	if got[1].Broadcasting == nil {
		t.Fatal("broadcasting should be an empty slice")
	}
	if got[0].Venue == nil || got[0].Venue.Name != "MorumBIS" {
		t.Fatalf("venue = %+v", got[0].Venue)
	}
	if !got[1].MatchDate.Equal(when) {
		t.Fatalf("date = %v want %v", got[1].MatchDate, when)
	}
}

func TestRepository_UpsertReplacesAndKeepsOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := Match{ID: "m1", Tournament: "t", HomeTeam: "a", AwayTeam: "b"}
	if err := repo.UpsertMatches(ctx, []Match{base, {ID: "m2", Tournament: "t", HomeTeam: "c", AwayTeam: "d"}}); err != nil {
		t.Fatal(err)
	}
	base.IsLive = true
	base.Score = &Score{Home: 1, Away: 0}
	if err := repo.UpsertMatches(ctx, []Match{base}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.GetMatch(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsLive || got.Score == nil || got.Score.Home != 1 {
		t.Fatalf("update not applied: %+v", got)
	}
	all, _ := repo.ListMatches(ctx)
	if len(all) != 2 {
		t.Fatalf("len = %d", len(all))
	}
}

func TestRepository_UpsertRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpsertMatches(context.Background(), []Match{{ID: "m1", Tournament: "t"}})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_ = repo.UpsertMatches(ctx, []Match{
		{ID: "m1", Tournament: "t", HomeTeam: "a", AwayTeam: "b"},
		{ID: "m2", Tournament: "t", HomeTeam: "a", AwayTeam: "b"},
	})
	if err := repo.DeleteMatch(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteMatch(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := repo.GetMatch(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get err = %v", err)
	}
	n, err := repo.DeleteAllMatches(ctx)
	if err != nil || n != 1 {
		t.Fatalf("delete all = %d, %v", n, err)
	}
}

func TestRepository_UpsertTeamWithoutTournaments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.UpsertTeams(ctx, []Team{{ID: "saopaulo", Slug: "sao-paulo", Name: "São Paulo"}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := repo.ListTeams(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Name != "São Paulo" || got[0].Slug != "sao-paulo" {
		t.Fatalf("teams = %+v", got)
	}
	if got[0].Tournaments == nil || len(got[0].Tournaments) != 0 {
		t.Fatalf("tournaments = %#v", got[0].Tournaments)
	}
}

func TestSeedFromDir_LoadsSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	stats, err := SeedFromDir(ctx, repo, filepath.Join("testdata", "seed"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if stats.Teams != 3 || stats.Tournaments != 1 || stats.Channels != 2 || stats.Matches != 2 || stats.News != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Skipped != 1 {
		t.Fatalf("skipped = %d", stats.Skipped)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Matches) != 2 || len(snap.Teams) != 3 || len(snap.Tournaments) != 1 || len(snap.Channels) != 2 {
		t.Fatalf("snapshot sizes: %d %d %d %d", len(snap.Matches), len(snap.Teams), len(snap.Tournaments), len(snap.Channels))
	}
	if snap.Teams[0].Tournaments[0] != "paulistao26" {
		t.Fatalf("team tournaments = %v", snap.Teams[0].Tournaments)
	}
	if snap.Teams[2].ID != "palmeiras" || snap.Teams[2].Tournaments == nil || len(snap.Teams[2].Tournaments) != 0 {
		t.Fatalf("team without tournaments = %+v", snap.Teams[2])
	}
	if snap.Channels[0].ThirdPartyURL == "" {
		t.Fatal("thirdpartyurl lost")
	}
	if snap.Matches[0].Score != nil || snap.Matches[1].Score == nil {
		t.Fatalf("scores = %+v / %+v", snap.Matches[0].Score, snap.Matches[1].Score)
	}
}

func TestSeedFromDir_MissingDirIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	stats, err := SeedFromDir(context.Background(), repo, t.TempDir())
	if err != nil || stats.Total() != 0 {
		t.Fatalf("stats = %+v err = %v", stats, err)
	}
}

func TestListNews_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.UpsertNews(ctx, []News{
		{ID: "n1", Title: "old", UpdatedAt: old},
		{ID: "n2", Title: "new", UpdatedAt: old.Add(24 * time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.ListNews(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "n2" {
		t.Fatalf("news = %+v", got)
	}
}
