package matches

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/db"
	"github.com/NetoRibeiro/ovpfh-v2/internal/feed"
	"github.com/NetoRibeiro/ovpfh-v2/internal/metrics"
)

type testEnv struct {
	r    *gin.Engine
	repo *catalog.Repository
	feed *feed.Feed
	rec  *metrics.Recorder
}

func setupRouter(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, err := db.Open(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	g, err := db.Gorm(sqlDB)
	if err != nil {
		t.Fatalf("gorm: %v", err)
	}
	repo := catalog.NewRepository(g)
	ctx := context.Background()
	snap := fixture()
	if err := repo.UpsertTeams(ctx, snap.Teams); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertTournaments(ctx, snap.Tournaments); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertChannels(ctx, []catalog.Channel{{ID: "sportv", Logo: "sportv.png", ThirdPartyURL: "https://ge.globo.com"}}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertMatches(ctx, snap.Matches); err != nil {
		t.Fatal(err)
	}

	f := feed.New()
	rec := metrics.NewRecorder()
	poller := feed.NewPoller(repo, f, nil, nil, rec, time.Hour)
	if err := poller.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	h := NewHandler(Deps{
		Repo:     repo,
		Feed:     f,
		Location: brt,
		Metrics:  rec,
		OnChange: func(ctx context.Context) { _ = poller.RunOnce(ctx) },
		Now:      func() time.Time { return at(18, 12, 0) },
	})
	r := gin.New()
	protect := func(c *gin.Context) {
		if c.GetHeader("X-Test-Admin") != "yes" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		}
	}
	RegisterRoutes(r, h, protect)
	return testEnv{r: r, repo: repo, feed: f, rec: rec}
}

func do(r http.Handler, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Test-Admin", "yes")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type listBody struct {
	Date          string `json:"date"`
	UseDateFilter bool   `json:"useDateFilter"`
	Count         int    `json:"count"`
	Groups        []struct {
		Tournament string `json:"tournament"`
		Name       string `json:"name"`
		Matches    []struct {
			ID       string `json:"id"`
			HomeName string `json:"homeName"`
			URL      string `json:"url"`
			Channels []struct {
				Channel string `json:"channel"`
				Logo    string `json:"logo"`
				URL     string `json:"url"`
			} `json:"channels"`
		} `json:"matches"`
	} `json:"groups"`
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) listBody {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var out listBody
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestListMatches_TodayByDefault(t *testing.T) {
	env := setupRouter(t)
	got := decodeList(t, do(env.r, http.MethodGet, "/api/matches", nil, false))
	assertEq(t, got.Date, "2026-01-18")
	assertEq(t, got.Count, 3)
	assertEq(t, len(got.Groups), 2)
	assertEq(t, got.Groups[0].Name, "Paulistão")
	assertEq(t, got.Groups[0].Matches[0].ID, "p1")
	assertEq(t, got.Groups[0].Matches[0].URL, "/paulistao26/18-01-2026/corinthians-vs-saopaulo/")
	assertEq(t, got.Groups[1].Matches[0].Channels[0].Logo, "sportv.png")
	assertEq(t, got.Groups[1].Matches[0].Channels[1].Logo, "")
	if env.rec.Snapshot().FilterPasses != 1 {
		t.Fatalf("filter passes = %d", env.rec.Snapshot().FilterPasses)
	}
}

func TestListMatches_QueryParams(t *testing.T) {
	env := setupRouter(t)

	got := decodeList(t, do(env.r, http.MethodGet, "/api/matches?date=2026-01-19", nil, false))
	assertEq(t, got.Count, 1)

	got = decodeList(t, do(env.r, http.MethodGet, "/api/matches?team=saopaulo", nil, false))
	assertEq(t, got.UseDateFilter, false)
	assertEq(t, got.Count, 3)

	got = decodeList(t, do(env.r, http.MethodGet, "/api/matches?q=sportv", nil, false))
	assertEq(t, got.Count, 1)

	got = decodeList(t, do(env.r, http.MethodGet, "/api/matches?tournament=gauchao26", nil, false))
	assertEq(t, got.Count, 1)

	w := do(env.r, http.MethodGet, "/api/matches?date=18/01/2026", nil, false)
	assertEq(t, w.Code, http.StatusBadRequest)
}

func TestMatchPage(t *testing.T) {
	env := setupRouter(t)
	w := do(env.r, http.MethodGet, "/api/match-page/paulistao26/18-01-2026/saopaulo-vs-corinthians/", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Ref   struct{ DateSlug string } `json:"ref"`
		Match struct{ ID string }       `json:"match"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	assertEq(t, body.Match.ID, "p2")
	assertEq(t, body.Ref.DateSlug, "18-01-2026")

	for _, p := range []string{"/api/match-page/a/b/c/d", "/api/match-page/paulistao26/18-01-2026/saopaulocorinthians/", "/api/match-page/paulistao26/01-02-2026/saopaulo-vs-corinthians/"} {
		if w := do(env.r, http.MethodGet, p, nil, false); w.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d", p, w.Code)
		}
	}
}

func TestGetMatchAndLive(t *testing.T) {
	env := setupRouter(t)
	w := do(env.r, http.MethodGet, "/api/matches/g1", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"homeName":"Grêmio"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
	assertEq(t, do(env.r, http.MethodGet, "/api/matches/nope", nil, false).Code, http.StatusNotFound)

	w = do(env.r, http.MethodGet, "/api/matches/live", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	assertEq(t, strings.TrimSpace(w.Body.String()), "[]")
}

func TestTeamAndTournamentRoutes(t *testing.T) {
	env := setupRouter(t)

	w := do(env.r, http.MethodGet, "/api/teams/sao-paulo/matches?when=upcoming", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	var ms []struct{ ID string }
	_ = json.Unmarshal(w.Body.Bytes(), &ms)
	if len(ms) != 2 || ms[0].ID != "p2" || ms[1].ID != "p3" {
		t.Fatalf("upcoming = %+v", ms)
	}

	w = do(env.r, http.MethodGet, "/api/teams/saopaulo/matches?when=recent", nil, false)
	ms = nil
	_ = json.Unmarshal(w.Body.Bytes(), &ms)
	if len(ms) != 1 || ms[0].ID != "p1" {
		t.Fatalf("recent = %+v", ms)
	}

	assertEq(t, do(env.r, http.MethodGet, "/api/teams/saopaulo/matches?when=soon", nil, false).Code, http.StatusBadRequest)
	assertEq(t, do(env.r, http.MethodGet, "/api/teams/ghost", nil, false).Code, http.StatusNotFound)
	assertEq(t, do(env.r, http.MethodGet, "/api/teams/saopaulo", nil, false).Code, http.StatusOK)

	w = do(env.r, http.MethodGet, "/api/tournaments/gauchao26/teams", nil, false)
	var teams []struct{ ID string }
	_ = json.Unmarshal(w.Body.Bytes(), &teams)
	if len(teams) != 2 || teams[0].ID != "gremio" {
		t.Fatalf("teams = %+v", teams)
	}

	w = do(env.r, http.MethodGet, "/api/tournaments/paulistao26/matches?when=all&limit=2", nil, false)
	ms = nil
	_ = json.Unmarshal(w.Body.Bytes(), &ms)
	assertEq(t, len(ms), 2)

	for _, p := range []string{"/api/teams", "/api/tournaments", "/api/channels"} {
		assertEq(t, do(env.r, http.MethodGet, p, nil, false).Code, http.StatusOK)
	}
}

func TestAdminWrites_RequireProtect(t *testing.T) {
	env := setupRouter(t)
	m := map[string]any{
		"id": "new1", "tournament": "gauchao26", "homeTeam": "inter", "awayTeam": "gremio",
		"matchDate": "2026-01-18T19:00:00-03:00", "score": map[string]any{"home": nil, "away": nil},
		"broadcasting": []map[string]string{{"channel": "SporTV"}},
	}
	assertEq(t, do(env.r, http.MethodPost, "/api/matches", m, false).Code, http.StatusUnauthorized)

	w := do(env.r, http.MethodPost, "/api/matches", m, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", w.Code, w.Body.String())
	}
	// the feed reloads synchronously after writes
	got := decodeList(t, do(env.r, http.MethodGet, "/api/matches?tournament=gauchao26", nil, false))
	assertEq(t, got.Count, 2)

	m["score"] = map[string]any{"home": 1, "away": nil}
	assertEq(t, do(env.r, http.MethodPut, "/api/matches/new1", m, true).Code, http.StatusBadRequest)

	m["score"] = map[string]any{"home": 1, "away": 0}
	m["isLive"] = true
	assertEq(t, do(env.r, http.MethodPut, "/api/matches/new1", m, true).Code, http.StatusOK)
	w = do(env.r, http.MethodGet, "/api/matches/live", nil, false)
	if !strings.Contains(w.Body.String(), `"id":"new1"`) {
		t.Fatalf("live = %s", w.Body.String())
	}
	assertEq(t, do(env.r, http.MethodPut, "/api/matches/missing", m, true).Code, http.StatusNotFound)

	assertEq(t, do(env.r, http.MethodDelete, "/api/matches/new1", nil, true).Code, http.StatusNoContent)
	assertEq(t, do(env.r, http.MethodDelete, "/api/matches/new1", nil, true).Code, http.StatusNotFound)
	assertEq(t, do(env.r, http.MethodGet, "/api/matches/new1", nil, false).Code, http.StatusNotFound)

	w = do(env.r, http.MethodDelete, "/api/matches", nil, true)
	assertEq(t, w.Code, http.StatusOK)
	assertEq(t, len(env.feed.Snapshot().Matches), 0)
}

func TestAdminUpsertCatalog(t *testing.T) {
	env := setupRouter(t)
	w := do(env.r, http.MethodPost, "/api/channels", []map[string]string{{"id": "globo", "logo": "g.png"}}, true)
	assertEq(t, w.Code, http.StatusOK)
	assertEq(t, len(env.feed.Snapshot().Channels), 2)

	w = do(env.r, http.MethodPost, "/api/teams", []map[string]string{{"name": "no id"}}, true)
	assertEq(t, w.Code, http.StatusBadRequest)
}

func TestImportCSV(t *testing.T) {
	env := setupRouter(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "jogos.csv")
	_, _ = fw.Write([]byte("Campeonato;Mandante;Visitante;Data;Hora;Transmissão\n" +
		"Gauchão;Internacional;Grêmio;25/01/2026;18:00;Premiere\n" +
		"Gauchão;;Grêmio;25/01/2026;18:00;Premiere\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/matches/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-Admin", "yes")
	w := httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Imported int      `json:"imported"`
		Failed   int      `json:"failed"`
		Errors   []string `json:"errors"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Imported != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := env.feed.Snapshot().MatchByID("gauchao26-inter-vs-gremio-25-01-2026"); !ok {
		t.Fatal("imported match not in feed")
	}
}

func TestExports(t *testing.T) {
	env := setupRouter(t)
	w := do(env.r, http.MethodGet, "/api/matches.ics?team=gremio", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	ics := w.Body.String()
	if !strings.Contains(ics, "BEGIN:VCALENDAR") || strings.Count(ics, "BEGIN:VEVENT") != 1 {
		t.Fatalf("ics = %s", ics)
	}
	if !strings.Contains(ics, "SUMMARY:Grêmio x Internacional") || !strings.Contains(ics, "DTSTART:20260118T190000Z") {
		t.Fatalf("ics = %s", ics)
	}

	w = do(env.r, http.MethodGet, "/api/matches.csv", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assertEq(t, len(lines), 5)
	if !strings.HasPrefix(lines[0], "id,tournament,home_team,away_team,date,time") {
		t.Fatalf("header = %s", lines[0])
	}
	if !strings.Contains(w.Body.String(), "g1,gauchao26,gremio,inter,2026-01-18,16:00,,SporTV / Premiere") {
		t.Fatalf("csv = %s", w.Body.String())
	}
}

func TestExportICS_FoldsLongLines(t *testing.T) {
	env := setupRouter(t)
	var bs []catalog.Broadcast
	for _, name := range []string{"Canal Um", "Canal Dois", "Canal Tres", "Canal Quatro", "Canal Cinco", "Canal Seis", "Canal Sete", "Canal Oito"} {
		bs = append(bs, catalog.Broadcast{Channel: name})
	}
	ctx := context.Background()
	if err := env.repo.UpsertMatches(ctx, []catalog.Match{{ID: "g9", Tournament: "gauchao26", HomeTeam: "inter", AwayTeam: "gremio", MatchDate: at(20, 19, 0), Broadcasting: bs}}); err != nil {
		t.Fatal(err)
	}
	snap, err := env.repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	env.feed.Publish(env.feed.Begin(), snap)

	w := do(env.r, http.MethodGet, "/api/matches.ics?tournament=gauchao26", nil, false)
	assertEq(t, w.Code, http.StatusOK)
	body := w.Body.String()
	for _, line := range strings.Split(strings.TrimSuffix(body, "\r\n"), "\r\n") {
		if len(line) > 75 {
			t.Fatalf("line longer than 75 octets: %q", line)
		}
	}
	unfolded := strings.ReplaceAll(body, "\r\n ", "")
	want := "Canal Um / Canal Dois / Canal Tres / Canal Quatro / Canal Cinco / Canal Seis / Canal Sete / Canal Oito"
	if !strings.Contains(unfolded, want) {
		t.Fatalf("description lost after unfolding: %s", unfolded)
	}
}

func TestStream_SendsCurrentThenUpdates(t *testing.T) {
	env := setupRouter(t)
	srv := httptest.NewServer(env.r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/matches/stream?tournament=gauchao26", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func() listBody {
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var b listBody
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &b); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			return b
		}
		t.Fatalf("stream ended: %v", sc.Err())
		return listBody{}
	}

	first := next()
	assertEq(t, first.Count, 1)

	if err := env.repo.UpsertMatches(context.Background(), []catalog.Match{{ID: "g2", Tournament: "gauchao26", HomeTeam: "inter", AwayTeam: "gremio", MatchDate: at(18, 20, 0)}}); err != nil {
		t.Fatal(err)
	}
	snap, _ := env.repo.LoadSnapshot(context.Background())
	env.feed.Publish(env.feed.Begin(), snap)

	second := next()
	assertEq(t, second.Count, 2)
}
