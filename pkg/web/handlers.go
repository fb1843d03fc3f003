package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-coworker/pkg/session"
	"github.com/teslashibe/go-coworker/pkg/tools"
)

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSessionState(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Controller.Stats())
}

func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	err := s.cfg.Controller.Start()
	if errors.Is(err, session.ErrAlreadyRunning) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(s.cfg.Controller.Stats())
}

func (s *Server) handleSessionText(c *fiber.Ctx) error {
	var req textRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	if session.IsQuit(req.Text) {
		s.cfg.Controller.Stop()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"stopping": true})
	}

	err := s.cfg.Controller.SendText(req.Text)
	if errors.Is(err, session.ErrNotActive) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"sent": true})
}

func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	s.cfg.Controller.Stop()
	return c.Status(fiber.StatusAccepted).JSON(s.cfg.Controller.Stats())
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Controller.Transcript())
}

func (s *Server) handleListTools(c *fiber.Ctx) error {
	return c.JSON(tools.Definitions())
}

// handleTriggerTool runs a tool by hand; the raw body is the argument JSON.
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := c.Params("name")
	args := strings.TrimSpace(string(c.Body()))
	if args == "" {
		args = "{}"
	}

	res := s.cfg.Controller.Dispatch(c.UserContext(), name, args)
	if res.Failed() {
		status := fiber.StatusBadGateway
		if tools.IsArgumentError(res.Err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"tool":  res.Tool,
			"route": res.Route,
			"error": res.Err.Error(),
		})
	}
	return c.JSON(res)
}
