package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SeedStats counts how many records of each collection were written.
type SeedStats struct {
	Teams       int `json:"teams"`
	Tournaments int `json:"tournaments"`
	Channels    int `json:"channels"`
	Matches     int `json:"matches"`
	News        int `json:"news"`
	Skipped     int `json:"skipped"`
}

func (s SeedStats) Total() int {
	return s.Teams + s.Tournaments + s.Channels + s.Matches + s.News
}

// SeedFromDir loads the JSON data files found in dir into the repository. Each file
// wraps its list in an object keyed by the collection name, e.g. {"canais": [...]}.
// Missing files are skipped; records without an id are counted as skipped.
func SeedFromDir(ctx context.Context, repo *Repository, dir string) (SeedStats, error) {
	var stats SeedStats

	var teams struct {
		Teams []Team `json:"teams"`
	}
	if ok, err := readSeedFile(dir, "teams.json", &teams); err != nil {
		return stats, err
	} else if ok {
		kept := keepWithID(teams.Teams, func(t Team) string { return t.ID }, &stats.Skipped)
		if err := repo.UpsertTeams(ctx, kept); err != nil {
			return stats, err
		}
		stats.Teams = len(kept)
	}

	var tournaments struct {
		Tournaments []Tournament `json:"tournaments"`
	}
	if ok, err := readSeedFile(dir, "tournaments.json", &tournaments); err != nil {
		return stats, err
	} else if ok {
		kept := keepWithID(tournaments.Tournaments, func(t Tournament) string { return t.ID }, &stats.Skipped)
		if err := repo.UpsertTournaments(ctx, kept); err != nil {
			return stats, err
		}
		stats.Tournaments = len(kept)
	}

	var channels struct {
		Canais []Channel `json:"canais"`
	}
	if ok, err := readSeedFile(dir, "canais.json", &channels); err != nil {
		return stats, err
	} else if ok {
		kept := keepWithID(channels.Canais, func(c Channel) string { return c.ID }, &stats.Skipped)
		if err := repo.UpsertChannels(ctx, kept); err != nil {
			return stats, err
		}
		stats.Channels = len(kept)
	}

	var matches struct {
		Matches []Match `json:"matches"`
	}
	if ok, err := readSeedFile(dir, "matches.json", &matches); err != nil {
		return stats, err
	} else if ok {
		kept := keepWithID(matches.Matches, func(m Match) string { return m.ID }, &stats.Skipped)
		if err := repo.UpsertMatches(ctx, kept); err != nil {
			return stats, err
		}
		stats.Matches = len(kept)
	}

	var news struct {
		News []News `json:"news"`
	}
	if ok, err := readSeedFile(dir, "news.json", &news); err != nil {
		return stats, err
	} else if ok {
		kept := keepWithID(news.News, func(n News) string { return n.ID }, &stats.Skipped)
		if err := repo.UpsertNews(ctx, kept); err != nil {
			return stats, err
		}
		stats.News = len(kept)
	}

	return stats, nil
}

func readSeedFile(dir, name string, v any) (bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func keepWithID[T any](items []T, id func(T) string, skipped *int) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if id(it) == "" {
			*skipped++
			continue
		}
		out = append(out, it)
	}
	return out
}
