// Package server exposes the relay over HTTP.
package server

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/bowerhall/lantern/internal/conversation"
	"github.com/bowerhall/lantern/internal/logger"
	"github.com/bowerhall/lantern/internal/relay"
	"github.com/bowerhall/lantern/internal/wechat"
)

const defaultBodyLimit = 1 << 20

type Config struct {
	ListenAddr string
	Route      string
	BodyLimit  int
}

// HealthChecker reports whether an optional dependency is reachable.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type Server struct {
	config  Config
	relay   *relay.Relay
	store   *conversation.Store
	app     *fiber.App
	started time.Time

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status         string          `json:"status"`
	Sessions       int             `json:"sessions"`
	Uptime         string          `json:"uptime"`
	MemUsedPercent float64         `json:"mem_used_percent"`
	RSSBytes       uint64          `json:"rss_bytes"`
	Checks         map[string]bool `json:"checks,omitempty"`
}

func New(config Config, r *relay.Relay, store *conversation.Store) *Server {
	if config.Route == "" {
		config.Route = "/wechat"
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = defaultBodyLimit
	}

	s := &Server{
		config:  config,
		relay:   r,
		store:   store,
		started: time.Now(),
		checks:  make(map[string]HealthChecker),
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
		ErrorHandler:          s.handleError,
	})
	s.app = app

	app.Get(config.Route, s.handleHandshake)
	app.Post(config.Route, s.handleMessage)
	app.Get("/health", s.handleHealth)

	return s
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// AddCheck includes a dependency in /health. A failing check marks the
// status "degraded" but the webhook keeps serving.
func (s *Server) AddCheck(name string, c HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks[name] = c
}

func (s *Server) Run() error {
	logger.Info("server starting", "listen", s.config.ListenAddr, "route", s.config.Route)
	return s.app.Listen(s.config.ListenAddr)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

func (s *Server) handleHandshake(c *fiber.Ctx) error {
	echo := s.relay.Handshake(
		c.Query("signature"),
		c.Query("timestamp"),
		c.Query("nonce"),
		c.Query("echostr"),
	)

	c.Set(fiber.HeaderContentType, relay.ContentTypeText)
	return c.SendString(echo)
}

func (s *Server) handleMessage(c *fiber.Ctx) error {
	// the request body is only valid for the handler's lifetime
	body := append([]byte(nil), c.Body()...)

	reply, contentType := s.relay.HandleMessage(c.UserContext(), body)

	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(reply)
}

// handleError acknowledges rejected webhook deliveries with the plain
// "success" body the platform expects; everything else gets fiber's default.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code == fiber.StatusRequestEntityTooLarge &&
		c.Method() == fiber.MethodPost && c.Path() == s.config.Route {
		logger.Warn("inbound body over limit, acknowledged", "limit", s.config.BodyLimit)
		c.Set(fiber.HeaderContentType, relay.ContentTypeText)
		return c.Status(fiber.StatusOK).SendString(wechat.Acknowledge)
	}

	return fiber.DefaultErrorHandler(c, err)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := HealthStatus{
		Status:   "ok",
		Sessions: len(s.store.Senders()),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			status.RSSBytes = info.RSS
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		status.Checks = make(map[string]bool, len(s.checks))
		for name, check := range s.checks {
			ok := check.Healthy(ctx)
			status.Checks[name] = ok
			if !ok {
				status.Status = "degraded"
			}
		}
	}

	return c.JSON(status)
}
