// Package httpserver serves the read-only schedule page, metrics and health.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"matchbot/internal/cache"
	"matchbot/internal/registry"
	rtsup "matchbot/internal/runtime/supervisor"
	"matchbot/internal/scheduler"
	logx "matchbot/pkg/logx"
)

// Schedule is the cache surface used by /schedule.
type Schedule interface {
	Upcoming(ctx context.Context, from, to time.Time) ([]cache.Event, error)
	Get(ctx context.Context, id string) (cache.Event, bool, error)
}

// Threads is the registry surface used by /schedule.
type Threads interface {
	Get(id string) (registry.ThreadRecord, bool)
}

type Deps struct {
	Schedule Schedule // nil when the cache is disabled
	Threads  Threads
	Timers   func() []scheduler.Pending
	Tasks    func() []rtsup.TaskStats
	Metrics  http.Handler
	Now      func() time.Time
	Log      logx.Logger
}

type Server struct {
	engine *gin.Engine
	deps   Deps
	log    logx.Logger
}

// ScheduleEntry is one /schedule row: cached metadata plus thread handles.
type ScheduleEntry struct {
	cache.Event
	Threads *registry.ThreadRecord `json:"threads,omitempty"`
}

func init() { gin.SetMode(gin.ReleaseMode) }

func New(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{engine: gin.New(), deps: d, log: d.Log.With(logx.String("comp", "http"))}
	s.engine.Use(gin.Recovery(), s.requestLog())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/schedule", s.schedule)
	s.engine.GET("/schedule/:id", s.event)
	s.engine.GET("/timers", s.timers)
	if d.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(d.Metrics))
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http listening", logx.String("addr", addr))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", d),
		}
		if c.Writer.Status() >= 500 {
			s.log.Warn("request failed", fields...)
			return
		}
		s.log.Debug("request ok", fields...)
	}
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.deps.Tasks != nil {
		resp["tasks"] = s.deps.Tasks()
	}
	c.JSON(http.StatusOK, resp)
}

// schedule lists cached events kicking off within ?days (default 2) from
// the start of today.
func (s *Server) schedule(c *gin.Context) {
	if s.deps.Schedule == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "schedule cache disabled"})
		return
	}
	days, err := strconv.Atoi(c.DefaultQuery("days", "2"))
	if err != nil || days <= 0 || days > 14 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 14"})
		return
	}
	now := s.deps.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := s.deps.Schedule.Upcoming(c.Request.Context(), from, from.AddDate(0, 0, days))
	if err != nil {
		s.log.Warn("schedule query failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]ScheduleEntry, 0, len(events))
	for _, e := range events {
		out = append(out, s.entry(e))
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "days": days, "events": out})
}

func (s *Server) event(c *gin.Context) {
	if s.deps.Schedule == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "schedule cache disabled"})
		return
	}
	e, ok, err := s.deps.Schedule.Get(c.Request.Context(), c.Param("id"))
	switch {
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
	default:
		c.JSON(http.StatusOK, s.entry(e))
	}
}

func (s *Server) entry(e cache.Event) ScheduleEntry {
	out := ScheduleEntry{Event: e}
	if s.deps.Threads != nil {
		if rec, ok := s.deps.Threads.Get(e.ID); ok {
			out.Threads = &rec
		}
	}
	return out
}

func (s *Server) timers(c *gin.Context) {
	if s.deps.Timers == nil {
		c.JSON(http.StatusOK, gin.H{"timers": []scheduler.Pending{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timers": s.deps.Timers()})
}
