package matches

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/channels"
	"github.com/NetoRibeiro/ovpfh-v2/internal/feed"
	"github.com/NetoRibeiro/ovpfh-v2/internal/logging"
	"github.com/NetoRibeiro/ovpfh-v2/internal/matchurl"
	"github.com/NetoRibeiro/ovpfh-v2/internal/metrics"
)

type Deps struct {
	Repo     *catalog.Repository
	Feed     *feed.Feed
	Resolver *channels.Resolver
	Location *time.Location
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
	// OnChange runs after every successful write, typically a synchronous feed reload
	// plus a notification to other instances.
	OnChange  func(ctx context.Context)
	Now       func() time.Time
	KeepAlive time.Duration
}

type Handler struct {
	d Deps
}

func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Resolver == nil {
		d.Resolver = channels.NewResolver(nil)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.KeepAlive <= 0 {
		d.KeepAlive = 25 * time.Second
	}
	return &Handler{d: d}
}

// ----- Routes -----

func RegisterRoutes(r *gin.Engine, h *Handler, protect gin.HandlerFunc) {
	api := r.Group("/api")
	{
		api.GET("/matches", h.list)
		api.GET("/matches/stream", h.stream)
		api.GET("/matches/live", h.live)
		api.GET("/matches/:id", h.get)
		api.GET("/match-page/*path", h.page)
		api.GET("/matches.ics", h.exportICS)
		api.GET("/matches.csv", h.exportCSV)

		api.GET("/teams", h.teams)
		api.GET("/teams/:id", h.team)
		api.GET("/teams/:id/matches", h.teamMatches)
		api.GET("/tournaments", h.tournaments)
		api.GET("/tournaments/:id/matches", h.tournamentMatches)
		api.GET("/tournaments/:id/teams", h.tournamentTeams)
		api.GET("/channels", h.channels)

		api.POST("/matches", attachProtect(protect, h.create))
		api.PUT("/matches/:id", attachProtect(protect, h.update))
		api.DELETE("/matches/:id", attachProtect(protect, h.remove))
		api.DELETE("/matches", attachProtect(protect, h.removeAll))
		api.POST("/matches/import", attachProtect(protect, h.importFile))
		api.POST("/teams", attachProtect(protect, h.upsertTeams))
		api.POST("/tournaments", attachProtect(protect, h.upsertTournaments))
		api.POST("/channels", attachProtect(protect, h.upsertChannels))
	}
}

// attachProtect wraps mutating handlers with protect; read routes stay public.
func attachProtect(protect gin.HandlerFunc, h gin.HandlerFunc) gin.HandlerFunc {
	if protect == nil {
		return h
	}
	return func(c *gin.Context) {
		protect(c)
		if c.IsAborted() {
			return
		}
		h(c)
	}
}

// ----- reads -----

// current returns the snapshot being served with its index and presenter.
func (h *Handler) current() (feed.Update, *catalog.Index, *Presenter) {
	u := h.d.Feed.Current()
	idx := catalog.NewIndex(u.Snapshot)
	return u, idx, NewPresenter(u.Snapshot, idx, h.d.Resolver, h.d.Location)
}

// stateFromQuery builds filter state from ?date=YYYY-MM-DD&team=&tournament=&q=.
func (h *Handler) stateFromQuery(c *gin.Context) (State, error) {
	st := NewState(h.d.Now(), h.d.Location)
	if d := c.Query("date"); d != "" {
		day, err := time.ParseInLocation("2006-01-02", d, h.d.Location)
		if err != nil {
			return State{}, fmt.Errorf("invalid date %q", d)
		}
		st.CurrentDate = day
	}
	if t := c.Query("tournament"); t != "" {
		st = st.SelectTournament(t)
	}
	if t := c.Query("team"); t != "" {
		st = st.SelectTeam(t)
	}
	return st.SetSearch(c.Query("q")), nil
}

type listResponse struct {
	Date          string      `json:"date"`
	UseDateFilter bool        `json:"useDateFilter"`
	Generation    uint64      `json:"generation"`
	Count         int         `json:"count"`
	Groups        []GroupView `json:"groups"`
}

func (h *Handler) filtered(u feed.Update, idx *catalog.Index, p *Presenter, st State) listResponse {
	groups := FilterIndexed(u.Snapshot, idx, st)
	n := Count(groups)
	h.d.Metrics.RecordFilterPass(n)
	return listResponse{
		Date:          st.CurrentDate.In(h.d.Location).Format("2006-01-02"),
		UseDateFilter: st.UseDateFilter,
		Generation:    u.Generation,
		Count:         n,
		Groups:        p.Groups(groups),
	}
}

func (h *Handler) list(c *gin.Context) {
	st, err := h.stateFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, idx, p := h.current()
	c.JSON(http.StatusOK, h.filtered(u, idx, p, st))
}

// stream pushes the filtered groups as server-sent events, once on connect and again
// for every newer snapshot.
func (h *Handler) stream(c *gin.Context) {
	st, err := h.stateFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(chan feed.Update, 1)
	cancel := h.d.Feed.Subscribe(func(u feed.Update) {
		// single writer: drop the stale pending update, keep the newest
		select {
		case <-updates:
		default:
		}
		updates <- u
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ping := time.NewTicker(h.d.KeepAlive)
	defer ping.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case u := <-updates:
			idx := catalog.NewIndex(u.Snapshot)
			p := NewPresenter(u.Snapshot, idx, h.d.Resolver, h.d.Location)
			c.SSEvent("matches", h.filtered(u, idx, p, st))
			return true
		case <-ping.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		}
	})
}

func (h *Handler) live(c *gin.Context) {
	u, _, p := h.current()
	c.JSON(http.StatusOK, p.Matches(Live(u.Snapshot)))
}

func (h *Handler) get(c *gin.Context) {
	u, _, p := h.current()
	m, ok := u.Snapshot.MatchByID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, p.Match(m))
}

func (h *Handler) page(c *gin.Context) {
	ref, ok := matchurl.Parse(c.Param("path"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}
	u, idx, p := h.current()
	m, ok := FindByRef(u.Snapshot, idx, ref, h.d.Location)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found", "key": ref.Key()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ref": ref, "match": p.Match(m)})
}

func (h *Handler) teams(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.d.Feed.Snapshot().Teams))
}

func (h *Handler) team(c *gin.Context) {
	u, idx, p := h.current()
	t, ok := idx.Team(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	all := ByTeam(u.Snapshot, idx, t.ID)
	now := h.d.Now()
	c.JSON(http.StatusOK, gin.H{
		"team":     t,
		"upcoming": p.Matches(Upcoming(all, now, DefaultTeamLimit)),
		"recent":   p.Matches(Recent(all, now, DefaultTeamLimit)),
	})
}

func (h *Handler) teamMatches(c *gin.Context) {
	u, idx, p := h.current()
	ms, err := h.window(c, ByTeam(u.Snapshot, idx, c.Param("id")), DefaultTeamLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p.Matches(ms))
}

func (h *Handler) tournaments(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.d.Feed.Snapshot().Tournaments))
}

func (h *Handler) tournamentMatches(c *gin.Context) {
	u, idx, p := h.current()
	ms, err := h.window(c, ByTournament(u.Snapshot, idx, c.Param("id")), DefaultTournamentLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p.Matches(ms))
}

func (h *Handler) tournamentTeams(c *gin.Context) {
	u, idx, _ := h.current()
	c.JSON(http.StatusOK, TeamsInTournament(u.Snapshot, idx, c.Param("id")))
}

func (h *Handler) channels(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.d.Feed.Snapshot().Channels))
}

// window applies ?when=upcoming|recent|all and ?limit=N.
func (h *Handler) window(c *gin.Context, ms []catalog.Match, defLimit int) ([]catalog.Match, error) {
	limit := defLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limit %q", s)
		}
		limit = n
	}
	switch c.DefaultQuery("when", "upcoming") {
	case "upcoming":
		return Upcoming(ms, h.d.Now(), limit), nil
	case "recent":
		return Recent(ms, h.d.Now(), limit), nil
	case "all":
		return truncate(ms, limit), nil
	default:
		return nil, errors.New("when must be upcoming, recent or all")
	}
}

// ----- writes -----

func (h *Handler) changed(ctx context.Context) {
	if h.d.OnChange != nil {
		h.d.OnChange(ctx)
	}
}

func (h *Handler) create(c *gin.Context) {
	var m catalog.Match
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	h.save(c, m, http.StatusCreated)
}

func (h *Handler) update(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.d.Repo.GetMatch(c.Request.Context(), id); err != nil {
		h.repoError(c, err)
		return
	}
	var m catalog.Match
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json: " + err.Error()})
		return
	}
	m.ID = id
	h.save(c, m, http.StatusOK)
}

func (h *Handler) save(c *gin.Context, m catalog.Match, status int) {
	if err := m.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.d.Repo.UpsertMatches(c.Request.Context(), []catalog.Match{m}); err != nil {
		h.repoError(c, err)
		return
	}
	h.changed(c.Request.Context())
	u, _, p := h.current()
	if stored, ok := u.Snapshot.MatchByID(m.ID); ok {
		m = stored
	}
	c.JSON(status, p.Match(m))
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.d.Repo.DeleteMatch(c.Request.Context(), c.Param("id")); err != nil {
		h.repoError(c, err)
		return
	}
	h.changed(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) removeAll(c *gin.Context) {
	n, err := h.d.Repo.DeleteAllMatches(c.Request.Context())
	if err != nil {
		h.repoError(c, err)
		return
	}
	h.changed(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// importFile loads a CSV or XLSX upload (form field "file") and upserts the rows.
func (h *Handler) importFile(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(12 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart too large"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	im := newImporter(h.d.Feed.Snapshot(), h.d.Location)
	rows, rowErrs, err := im.parseImport(fh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	errs := make([]string, 0, len(rowErrs))
	for _, e := range rowErrs {
		errs = append(errs, e.Error())
	}
	imported := 0
	for i, m := range rows {
		if err := h.d.Repo.UpsertMatches(c.Request.Context(), []catalog.Match{m}); err != nil {
			errs = append(errs, fmt.Sprintf("match %d (%s): %v", i+1, m.ID, err))
			continue
		}
		imported++
	}
	if imported > 0 {
		h.changed(c.Request.Context())
	}
	logging.FromContext(c.Request.Context(), h.d.Logger).Info("matches imported",
		logging.FieldCount, imported, "failed", len(errs), "file", fh.Filename)
	c.JSON(http.StatusOK, gin.H{"imported": imported, "failed": len(errs), "errors": errs})
}

func (h *Handler) upsertTeams(c *gin.Context) {
	var in []catalog.Team
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	for _, t := range in {
		if strings.TrimSpace(t.ID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every team needs an id"})
			return
		}
	}
	h.upserted(c, len(in), h.d.Repo.UpsertTeams(c.Request.Context(), in))
}

func (h *Handler) upsertTournaments(c *gin.Context) {
	var in []catalog.Tournament
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	for _, t := range in {
		if strings.TrimSpace(t.ID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every tournament needs an id"})
			return
		}
	}
	h.upserted(c, len(in), h.d.Repo.UpsertTournaments(c.Request.Context(), in))
}

func (h *Handler) upsertChannels(c *gin.Context) {
	var in []catalog.Channel
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad json"})
		return
	}
	for _, ch := range in {
		if strings.TrimSpace(ch.ID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every channel needs an id"})
			return
		}
	}
	h.upserted(c, len(in), h.d.Repo.UpsertChannels(c.Request.Context(), in))
}

func (h *Handler) upserted(c *gin.Context, n int, err error) {
	if err != nil {
		h.repoError(c, err)
		return
	}
	h.changed(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"upserted": n})
}

func (h *Handler) repoError(c *gin.Context, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	logging.FromContext(c.Request.Context(), h.d.Logger).Error("catalog write failed", logging.FieldError, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ----- exports -----

// exportSelection honours ?team= and ?tournament= so a calendar can follow one club.
func (h *Handler) exportSelection(c *gin.Context) ([]catalog.Match, *Presenter) {
	u, idx, p := h.current()
	ms := u.Snapshot.Matches
	if t := c.Query("team"); t != "" {
		ms = ByTeam(catalog.Snapshot{Matches: ms}, idx, t)
	}
	if t := c.Query("tournament"); t != "" {
		ms = ByTournament(catalog.Snapshot{Matches: ms}, idx, t)
	}
	return ms, p
}

const matchLength = 2 * time.Hour

func (h *Handler) exportICS(c *gin.Context) {
	ms, p := h.exportSelection(c)

	cal := ics.NewCalendar()
	cal.SetProductId("-//ovpfh//onde vai passar futebol hoje//PT")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)

	stamp := h.d.Now()
	for _, m := range ms {
		v := p.Match(m)
		ev := cal.AddEvent(m.ID + "@ovpfh")
		ev.SetDtStampTime(stamp)
		if !m.MatchDate.IsZero() {
			ev.SetStartAt(m.MatchDate)
			ev.SetEndAt(m.MatchDate.Add(matchLength))
		}
		ev.SetSummary(v.HomeName + " x " + v.AwayName)
		if m.Venue != nil && m.Venue.Name != "" {
			loc := m.Venue.Name
			if m.Venue.City != "" {
				loc += ", " + m.Venue.City
			}
			ev.SetLocation(loc)
		}
		desc := v.TournamentName
		if names := channelNames(m.Broadcasting); names != "" {
			desc += "\n" + names
		}
		ev.SetDescription(desc)
	}

	c.Header("Content-Disposition", "attachment; filename=matches.ics")
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(cal.Serialize()))
}

// exportCSV writes columns the importer reads back.
func (h *Handler) exportCSV(c *gin.Context) {
	ms, _ := h.exportSelection(c)

	filename := fmt.Sprintf("matches_%s.csv", h.d.Now().In(h.d.Location).Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{
		"id", "tournament", "home_team", "away_team",
		"date", "time", "score", "broadcasting",
		"round", "status", "venue", "city", "live", "url",
	})
	for _, m := range ms {
		local := m.MatchDate.In(h.d.Location)
		score := ""
		if m.Score != nil {
			score = fmt.Sprintf("%d-%d", m.Score.Home, m.Score.Away)
		}
		venue, city := "", ""
		if m.Venue != nil {
			venue, city = m.Venue.Name, m.Venue.City
		}
		_ = w.Write([]string{
			m.ID, m.Tournament, m.HomeTeam, m.AwayTeam,
			local.Format("2006-01-02"), local.Format("15:04"), score, channelNames(m.Broadcasting),
			m.Round, m.Status, venue, city, strconv.FormatBool(m.IsLive), m.MatchURL,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
	}
}

func channelNames(bs []catalog.Broadcast) string {
	names := make([]string, 0, len(bs))
	for _, b := range bs {
		names = append(names, b.Channel)
	}
	return strings.Join(names, " / ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
