package httpserver

import (
	"crypto/subtle"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"raidbot/internal/metrics"
	"raidbot/internal/notifier"
	"raidbot/internal/raid"
	logx "raidbot/pkg/logx"
)

// Sources feeds the read-only API. Nil funcs serve empty lists.
type Sources struct {
	Events        func() []*raid.Event
	Notifications func() []notifier.HistoryItem
	// Health reports component name to status; any non-"ok" value turns
	// /healthz into 503.
	Health  func() map[string]string
	Metrics http.Handler
}

type eventView struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Category     string         `json:"category,omitempty"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	Capacity     map[string]int `json:"capacity_by_role"`
	Participants int            `json:"participants"`
	Waitlist     int            `json:"waitlist"`
	Reminders    []string       `json:"reminders_sent"`
}

func viewOf(ev *raid.Event) eventView {
	return eventView{
		ID:           ev.ID,
		Name:         ev.Name,
		Category:     ev.Category,
		ScheduledAt:  ev.ScheduledAt,
		Capacity:     ev.Capacity,
		Participants: len(ev.Participants),
		Waitlist:     len(ev.Waitlist),
		Reminders:    ev.RemindersSent,
	}
}

// NewRouter builds the gin engine for cfg.
func NewRouter(cfg Config, src Sources, log logx.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		status := map[string]string{}
		if src.Health != nil {
			status = src.Health()
		}
		code := http.StatusOK
		for _, v := range status {
			if v != "ok" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, gin.H{"status": http.StatusText(code), "components": status})
	})

	authed := r.Group("/")
	authed.Use(bearerAuth(cfg.Token))
	{
		if cfg.Metrics && src.Metrics != nil {
			authed.GET("/metrics", gin.WrapH(src.Metrics))
		}

		api := authed.Group("/api")
		api.GET("/events", func(c *gin.Context) {
			out := make([]eventView, 0)
			if src.Events != nil {
				for _, ev := range src.Events() {
					out = append(out, viewOf(ev))
				}
			}
			c.JSON(http.StatusOK, out)
		})
		api.GET("/events/:id", func(c *gin.Context) {
			if src.Events != nil {
				id := c.Param("id")
				for _, ev := range src.Events() {
					if ev.ID == id {
						c.JSON(http.StatusOK, ev)
						return
					}
				}
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		})
		api.GET("/notifications", func(c *gin.Context) {
			out := make([]notifier.HistoryItem, 0)
			if src.Notifications != nil {
				out = append(out, src.Notifications()...)
			}
			c.JSON(http.StatusOK, out)
		})

		if cfg.Pprof {
			pp := authed.Group("/debug/pprof")
			pp.GET("/", gin.WrapF(hpprof.Index))
			pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
			pp.GET("/profile", gin.WrapF(hpprof.Profile))
			pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
			pp.POST("/symbol", gin.WrapF(hpprof.Symbol))
			pp.GET("/trace", gin.WrapF(hpprof.Trace))
			pp.GET("/:profile", gin.WrapF(hpprof.Index))
		}
	}
	return r
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			ah := c.GetHeader("Authorization")
			if strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", route),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}
