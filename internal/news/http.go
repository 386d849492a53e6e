package news

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/catalog"
	"github.com/NetoRibeiro/ovpfh-v2/internal/textnorm"
)

const defaultSource = "website"

// Store is the slice of the catalog repository the news routes need.
type Store interface {
	ListNews(ctx context.Context) ([]catalog.News, error)
	UpsertNews(ctx context.Context, ns []catalog.News) error
}

type Handler struct {
	store Store
	subs  *Subscribers
}

func NewHandler(store Store, subs *Subscribers) *Handler {
	return &Handler{store: store, subs: subs}
}

func RegisterRoutes(r gin.IRouter, h *Handler, protect gin.HandlerFunc) {
	api := r.Group("/api")
	api.GET("/news", h.list)
	api.POST("/newsletter", h.subscribe)
	if protect != nil {
		api.POST("/news", protect, h.upsert)
		api.GET("/newsletter/subscribers", protect, h.subscribers)
	}
}

// list returns the newest items first. ?category= matches case and accent
// insensitively; ?limit= caps the result.
func (h *Handler) list(c *gin.Context) {
	items, err := h.store.ListNews(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if cat := c.Query("category"); cat != "" {
		want := textnorm.Normalize(cat)
		kept := items[:0]
		for _, n := range items {
			if textnorm.Normalize(n.Category) == want {
				kept = append(kept, n)
			}
		}
		items = kept
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n < len(items) {
			items = items[:n]
		}
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) subscribe(c *gin.Context) {
	var req struct {
		Email  string `json:"email"`
		Source string `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = defaultSource
	}
	created, err := h.subs.Subscribe(c.Request.Context(), email, source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"ok": true, "email": email})
}

func (h *Handler) upsert(c *gin.Context) {
	var items []catalog.News
	if err := c.ShouldBindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	for _, n := range items {
		if n.ID == "" || strings.TrimSpace(n.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id and title are required"})
			return
		}
	}
	if err := h.store.UpsertNews(c.Request.Context(), items); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": len(items)})
}

func (h *Handler) subscribers(c *gin.Context) {
	subs, err := h.subs.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, subs)
}
