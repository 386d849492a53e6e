package catalog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchUnmarshal_NullScore(t *testing.T) {
	var m Match
	err := json.Unmarshal([]byte(`{"id":"m","tournament":"t","homeTeam":"a","awayTeam":"b","matchDate":"2026-01-18T16:00:00-03:00","score":{"home":null,"away":null}}`), &m)
	require.NoError(t, err)
	assert.Nil(t, m.Score)
	assert.NotNil(t, m.Broadcasting)
	assert.Empty(t, m.Broadcasting)
	assert.True(t, m.MatchDate.Equal(time.Date(2026, 1, 18, 19, 0, 0, 0, time.UTC)))
}

func TestMatchUnmarshal_FullScore(t *testing.T) {
	var m Match
	err := json.Unmarshal([]byte(`{"id":"m","tournament":"t","homeTeam":"a","awayTeam":"b","score":{"home":3,"away":0}}`), &m)
	require.NoError(t, err)
	require.NotNil(t, m.Score)
	assert.Equal(t, Score{Home: 3, Away: 0}, *m.Score)
}

func TestMatchUnmarshal_RejectsHalfScore(t *testing.T) {
	var m Match
	err := json.Unmarshal([]byte(`{"id":"m","score":{"home":1,"away":null}}`), &m)
	assert.ErrorIs(t, err, ErrMixedScore)
}

func TestParseMatchDate_LocalWithoutOffset(t *testing.T) {
	got, err := ParseMatchDate("2026-01-18T16:00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Local, got.Location())
	assert.Equal(t, 16, got.Hour())

	_, err = ParseMatchDate("18/01/2026")
	assert.Error(t, err)
}

func TestMatchValidate(t *testing.T) {
	ok := Match{ID: "m", Tournament: "t", HomeTeam: "a", AwayTeam: "b"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.AwayTeam = " "
	assert.Error(t, missing.Validate())

	negative := ok
	negative.Score = &Score{Home: -1}
	assert.Error(t, negative.Validate())
}

func TestTournamentDisplayName(t *testing.T) {
	assert.Equal(t, "Paulistão", Tournament{ID: "p", Name: "Campeonato Paulista", ShortName: "Paulistão"}.DisplayName())
	assert.Equal(t, "Campeonato Paulista", Tournament{ID: "p", Name: "Campeonato Paulista"}.DisplayName())
	assert.Equal(t, "p", Tournament{ID: "p"}.DisplayName())
}
