package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
	"github.com/vitalsum-lab/vitalsum/internal/rollup"
)

const dateLayout = "2006-01-02"

type Server struct {
	Engine *gin.Engine
	Addr   string

	db        *sql.DB
	rdb       *goredis.Client
	service   *rollup.Service
	scheduler storage.SchedulerStore
}

func New(addr string, db *sql.DB, rdb *goredis.Client, service *rollup.Service, scheduler storage.SchedulerStore, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine:    r,
		Addr:      addr,
		db:        db,
		rdb:       rdb,
		service:   service,
		scheduler: scheduler,
	}

	r.GET("/health", s.healthHandler)

	admin := r.Group("/admin/rollup")
	admin.GET("/stats", s.statsHandler)
	admin.POST("/recompute", s.recomputeHandler)

	return s
}

// healthHandler verifies connectivity to both backing stores.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Health check failed: redis unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "redis unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
		"redis":    "connected",
	})
}

// statsHandler returns the most recent rollup cycle's stats.
func (s *Server) statsHandler(c *gin.Context) {
	stats, ok, err := s.scheduler.LastStats(c.Request.Context(), rollup.TaskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle has run yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type recomputeRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// recomputeHandler rebuilds one user's summaries for an inclusive date
// range. Runs synchronously; long backfills are chunked internally.
func (s *Server) recomputeHandler(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date, expected YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date, expected YYYY-MM-DD"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date before start_date"})
		return
	}

	outcome, err := s.service.RecalculateRange(c.Request.Context(), req.UserID, start, end)
	if err != nil {
		slog.Error("Recompute failed", "user_id", req.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            outcome.Status,
		"summaries_created": outcome.SummariesCreated,
		"users_affected":    outcome.UsersAffected,
		"duration_ms":       float64(outcome.Duration.Microseconds()) / 1000.0,
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
