package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-coworker/pkg/calendar"
)

const upcomingLimit = 10

func (s *Server) requireCalendar(c *fiber.Ctx) error {
	if s.cfg.Calendar == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "calendar is not configured")
	}
	return c.Next()
}

func (s *Server) handleCalendarStatus(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Calendar.Status())
}

func (s *Server) handleCalendarAuth(c *fiber.Ctx) error {
	state, err := s.issueState(c, calStateCookie, "/api/calendar")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"auth_url": s.cfg.Calendar.AuthURL(state)})
}

// handleCalendarCode accepts a pasted authorization code.
func (s *Server) handleCalendarCode(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}
	if err := s.cfg.Calendar.Exchange(c.UserContext(), req.Code); err != nil {
		s.logger.Warn("calendar authorization failed", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(s.cfg.Calendar.Status())
}

func (s *Server) handleCalendarCallback(c *fiber.Ctx) error {
	if err := checkState(c, calStateCookie); err != nil {
		return err
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}
	if err := s.cfg.Calendar.Exchange(c.UserContext(), code); err != nil {
		s.logger.Warn("calendar authorization failed", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	s.clearState(c, calStateCookie, "/api/calendar")
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) handleCalendarEvents(c *fiber.Ctx) error {
	n := c.QueryInt("n", upcomingLimit)
	events, err := s.cfg.Calendar.Upcoming(c.UserContext(), n)
	if errors.Is(err, calendar.ErrNotAuthenticated) {
		return fiber.NewError(fiber.StatusPreconditionFailed, err.Error())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(events)
}

func (s *Server) handleCalendarDisconnect(c *fiber.Ctx) error {
	if err := s.cfg.Calendar.Disconnect(); err != nil {
		return err
	}
	return c.JSON(s.cfg.Calendar.Status())
}
