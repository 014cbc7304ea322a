package admin

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gofiber/adaptor/v2"

	"github.com/hackerspacekrk/iotm/internal/event"
	"github.com/hackerspacekrk/iotm/internal/router"
	"github.com/hackerspacekrk/iotm/internal/rules"
	"github.com/hackerspacekrk/iotm/internal/session"
	"github.com/hackerspacekrk/iotm/internal/store"
	"github.com/hackerspacekrk/iotm/internal/tags"
)

// Server is the admin HTTP/WS surface: read-only introspection over the
// live sessions/rules/tags, an OIDC-guarded write-back API onto the
// configuration store's watcher, and a Prometheus scrape endpoint.
//
// Grounded on the teacher's frontend.go (room-state JSON handlers) and
// live_ws.go (initial-state-then-stream websocket), generalised from a
// fixed room layout to the session/rule/tag core; the write-back handlers
// are new (the teacher's dashboard was read-only), built in the same
// fiber.Ctx handler-function style and guarded by the same AuthMiddleware
// shape as auth.go.
type Server struct {
	app *fiber.App

	sessions *session.Registry
	ruleIdx  *rules.Index
	tagStore *tags.Store
	watcher  *store.Watcher
	auth     *Authenticator

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}
}

// New builds the admin server. auth may be nil when OIDC is not
// configured, matching the teacher's initAuth's "not available" path.
func New(sessions *session.Registry, ruleIdx *rules.Index, tagStore *tags.Store, watcher *store.Watcher, r *router.Router, auth *Authenticator) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{DisableStartupMessage: true}),
		sessions: sessions,
		ruleIdx:  ruleIdx,
		tagStore: tagStore,
		watcher:  watcher,
		auth:     auth,
		clients:  make(map[*websocket.Conn]struct{}),
	}

	collector := NewCollector(sessions)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	r.OnDispatch = func(adapterName string, cmd *event.Command) {
		collector.OnDispatch(adapterName, cmd)
		s.broadcastDispatch(adapterName, cmd)
	}

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := s.app.Group("/api/v1")
	api.Get("/sessions", s.handleListSessions)
	api.Get("/rules/:event/:name", s.handleGetRule)
	api.Get("/tags/:name", s.handleGetTag)

	write := api.Group("/", s.requireAuth)
	write.Post("/tags/:name", s.handleUpsertTag)
	write.Delete("/tags/:name", s.handleDeleteTag)
	write.Post("/rules", s.handleUpsertRule)
	write.Delete("/rules/:event/:name", s.handleDeleteRule)

	if auth != nil {
		api.Get("/auth/login", auth.handleLogin)
		api.Get("/auth/callback", auth.handleCallback)
		api.Post("/auth/logout", auth.handleLogout)
		api.Get("/auth/me", auth.handleMe)
	}

	s.app.Get("/live", websocket.New(s.handleLive))

	return s
}

// Listen serves the admin surface on addr, blocking until the listener
// fails or is closed.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown closes every open connection and stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	if s.auth == nil {
		return c.Next()
	}
	return s.auth.middleware(c)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	type sessionView struct {
		Name        string `json:"name"`
		ReportTopic string `json:"report_topic"`
		ReportCount int    `json:"report_count"`
	}
	var out []sessionView
	s.sessions.ForEach(func(sess *session.Session) {
		out = append(out, sessionView{Name: sess.Name, ReportTopic: sess.ReportTopic, ReportCount: sess.ReportCount})
	})
	return c.JSON(out)
}

func (s *Server) handleGetRule(c *fiber.Ctx) error {
	eventName := c.Params("event")
	name := c.Params("name")
	rule := s.ruleIdx.GetRule(name, eventName)
	if rule == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "rule not found"})
	}
	return c.JSON(fiber.Map{"name": rule.Name, "event": rule.EventName})
}

func (s *Server) handleGetTag(c *fiber.Ctx) error {
	name := c.Params("name")
	values := s.tagStore.Values(name)
	if values == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "tag not found"})
	}
	return c.JSON(fiber.Map{"name": name, "values": values})
}

func (s *Server) handleUpsertTag(c *fiber.Ctx) error {
	var body struct {
		DeviceValues []string `json:"device_values"`
		CloudValues  []string `json:"cloud_values"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.watcher.OnTagInsert(c.Params("name"), body.DeviceValues, body.CloudValues); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleDeleteTag(c *fiber.Ctx) error {
	if err := s.watcher.OnTagDelete(c.Params("name")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleUpsertRule(c *fiber.Ctx) error {
	var row rules.Row
	if err := c.BodyParser(&row); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.watcher.OnRuleInsert(row); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleDeleteRule(c *fiber.Ctx) error {
	if err := s.watcher.OnRuleDelete(c.Params("name"), c.Params("event")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusOK)
}

// handleLive serves the router's live dispatch feed: an initial snapshot
// of every registered session's name, then one JSON message per Command
// routed thereafter, mirroring live_ws.go's "send initial state, then rely
// on the broadcast loop" shape.
func (s *Server) handleLive(c *websocket.Conn) {
	s.sessions.ForEach(func(sess *session.Session) {
		if err := c.WriteJSON(fiber.Map{"type": "session", "name": sess.Name}); err != nil {
			log.Errorf("admin: failed to send initial session state: %v", err)
			return
		}
	})

	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcastDispatch(adapterName string, cmd *event.Command) {
	msg := fiber.Map{"type": "dispatch", "session": adapterName, "action": cmd.Action}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Errorf("admin: failed to broadcast dispatch: %v", err)
		}
	}
}
