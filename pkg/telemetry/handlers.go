package telemetry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-playbot/pkg/control"
	"github.com/teslashibe/go-playbot/pkg/hub"
)

// handleStatus returns the latest control loop snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.source.Snapshot())
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// CommandRequest is the body of POST /api/commands
type CommandRequest struct {
	Command string `json:"command"`
}

// handleCommand queues a command for the control loop
func (s *Server) handleCommand(c *fiber.Ctx) error {
	var req CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	cmd := strings.TrimRight(req.Command, "\r\n")
	if cmd == "" || len(cmd) > s.maxCmd {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fmt.Sprintf("command must be 1 to %d bytes", s.maxCmd)})
	}

	if err := s.source.Inject([]byte(cmd)); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, control.ErrQueueFull) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	id := uuid.NewString()
	s.logger.Info("command injected", "id", id, "command", cmd)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":      id,
		"command": cmd,
	})
}

// handleEventsWS streams outbound lines and log records. ?kind=line or
// ?kind=log restricts the stream; several kinds are comma separated.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.Serve(s.events, c, strings.Split(c.Query("kind"), ",")...)
}
