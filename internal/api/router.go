package api

import (
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Router builds the gin engine with logging, recovery and one route group
// per table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(ginzap.Ginzap(s.log, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(s.log, true))
	r.Use(requestID())
	if s.cfg.Gzip {
		r.Use(gzip.Gzip(gzip.DefaultCompression))
	}

	root := r.Group("/api")
	for _, res := range s.resources {
		g := root.Group("/" + res.spec.Name)
		g.GET("", res.List)
		g.POST("", res.Create)
		g.POST("/find_by_ids", res.GetByIDs)
		g.GET("/:id", res.GetOne)
		g.HEAD("/:id", res.Has)
		g.PUT("/:id", res.Update)
		g.DELETE("/:id", res.Delete)
		if s.cfg.EnableTruncate {
			g.DELETE("", res.Truncate)
		}
	}
	return r
}

// requestID tags every request so log lines from one request can be joined.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
