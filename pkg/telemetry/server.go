// Package telemetry serves a live view of the controller over HTTP and
// websockets, and accepts commands as if they came from the companion.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-playbot/internal/log"
	"github.com/teslashibe/go-playbot/pkg/control"
	"github.com/teslashibe/go-playbot/pkg/hub"
	"github.com/teslashibe/go-playbot/pkg/protocol"
)

const (
	// LogHistory is the number of log entries kept for /api/logs.
	LogHistory = 500

	// EventBacklog is how many recent events a new websocket subscriber
	// receives first.
	EventBacklog = 100
)

// Source is the control loop as seen by the server.
type Source interface {
	Snapshot() control.Snapshot
	Inject(line []byte) error
}

// Event kinds
const (
	EventLine = "line"
	EventLog  = "log"
)

// Event is one websocket frame.
type Event struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Time  time.Time `json:"time"`
	Line  string    `json:"line,omitempty"`
	Level string    `json:"level,omitempty"`
}

// Options configures a Server.
type Options struct {
	Addr   string
	Source Source
	Logger *slog.Logger
	// MaxCommand bounds an injected command, matching the link's read size.
	MaxCommand int
}

// Server is the telemetry endpoint.
type Server struct {
	app    *fiber.App
	addr   string
	source Source
	logger *slog.Logger
	events *hub.Hub
	maxCmd int

	logs   []log.Entry
	logsMu sync.RWMutex
}

// New builds the routes. Nothing listens until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxCommand <= 0 {
		opts.MaxCommand = 80
	}
	s := &Server{
		addr:   opts.Addr,
		source: opts.Source,
		logger: opts.Logger.With("component", "telemetry"),
		events: hub.New("events", EventBacklog, opts.Logger),
		maxCmd: opts.MaxCommand,
		logs:   make([]log.Entry, 0, LogHistory),
	}

	app := fiber.New(fiber.Config{
		AppName:               "PlayBot Telemetry",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/logs", s.handleGetLogs)
	api.Post("/commands", s.handleCommand)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.events.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("telemetry listening", "addr", s.addr)
		errc <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdown); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

// Emit broadcasts an outbound protocol line. It never blocks.
func (s *Server) Emit(m protocol.Message) {
	s.broadcast(Event{Kind: EventLine, Line: m.String()})
}

// AddLogs stores drained log records and broadcasts them.
func (s *Server) AddLogs(entries []log.Entry) {
	s.logsMu.Lock()
	s.logs = append(s.logs, entries...)
	if over := len(s.logs) - LogHistory; over > 0 {
		s.logs = append(s.logs[:0], s.logs[over:]...)
	}
	s.logsMu.Unlock()

	for _, e := range entries {
		s.broadcast(Event{Kind: EventLog, Time: e.Time, Line: e.Message, Level: e.Level})
	}
}

func (s *Server) broadcast(ev Event) {
	ev.ID = uuid.NewString()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := s.events.Publish(ev.Kind, ev); err != nil {
		s.logger.Debug("event encode failed", "error", err)
	}
}
