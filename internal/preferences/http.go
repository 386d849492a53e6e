package preferences

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/auth"
	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
)

type Handler struct {
	repo     *Repository
	snapshot func() catalog.Snapshot
	now      func() time.Time
}

// NewHandler reads teams and tournaments for the options listing from snapshot.
func NewHandler(repo *Repository, snapshot func() catalog.Snapshot, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, snapshot: snapshot, now: now}
}

// RegisterRoutes mounts the preference routes behind guards, which must leave the
// signed-in user on the context (auth.AuthRequired).
func RegisterRoutes(r gin.IRouter, h *Handler, guards ...gin.HandlerFunc) {
	g := r.Group("/api/preferences", guards...)
	g.GET("", h.get)
	g.PUT("", h.put)
	g.POST("/toggle", h.toggle)
	g.GET("/options", h.options)
}

func userID(c *gin.Context) (int64, bool) {
	u, ok := auth.UserFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, false
	}
	return u.ID, true
}

func (h *Handler) get(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	p, err := h.repo.Get(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// put merges: lists missing from the body keep their stored value.
func (h *Handler) put(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req struct {
		Countries *[]string `json:"countries"`
		Leagues   *[]string `json:"leagues"`
		Teams     *[]string `json:"teams"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cur, err := h.repo.Get(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.Countries != nil {
		cur.Countries = *req.Countries
	}
	if req.Leagues != nil {
		cur.Leagues = *req.Leagues
	}
	if req.Teams != nil {
		cur.Teams = *req.Teams
	}
	h.save(c, uid, cur)
}

func (h *Handler) toggle(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req struct {
		Category string `json:"category"`
		ID       string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cur, err := h.repo.Get(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	next, err := Toggle(cur, req.Category, req.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.save(c, uid, next)
}

func (h *Handler) save(c *gin.Context, uid int64, p Preferences) {
	saved, err := h.repo.Save(c.Request.Context(), uid, p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

// options lists what can be picked: ?country=&league=&team= filter each list and
// ?year= selects the league season (current year by default).
func (h *Handler) options(c *gin.Context) {
	year := h.now().Year()
	if v := c.Query("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}
	snap := h.snapshot()
	c.JSON(http.StatusOK, gin.H{
		"year":      year,
		"countries": Countries(c.Query("country")),
		"leagues":   EligibleLeagues(snap.Tournaments, year, c.Query("league")),
		"teams":     Teams(snap.Teams, c.Query("team")),
	})
}
