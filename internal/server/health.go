package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NetoRibeiro/ovpfh-v2/internal/feed"
)

// RegisterHealth mounts /health (process up) and /ready (a snapshot is served and
// loads are not failing repeatedly). status may be nil, then /ready always passes.
func RegisterHealth(r gin.IRouter, status func() feed.Status) {
	r.GET("/health", func(c *gin.Context) {
		if err := c.Request.Context().Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if status == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		st := status()
		if st.IsReady() {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "feed": st})
			return
		}
		msg := st.LastError
		if msg == "" {
			msg = "not ready"
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg, "feed": st})
	})
}
