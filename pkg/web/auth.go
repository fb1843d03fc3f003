package web

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/teslashibe/go-coworker/pkg/auth"
)

const (
	sessionCookie  = "coworker_session"
	stateCookie    = "coworker_oauth_state"
	calStateCookie = "coworker_calendar_state"
	userKey        = "user"

	stateTTL = 10 * time.Minute
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// requireLogin rejects requests without a valid session when the gate is on.
func (s *Server) requireLogin(c *fiber.Ctx) error {
	if s.cfg.Auth == nil {
		return c.Next()
	}
	u, err := s.cfg.Auth.Authenticate(c.UserContext(), sessionToken(c))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "login required")
	}
	c.Locals(userKey, u)
	return c.Next()
}

// sessionToken reads the cookie, falling back to a bearer header.
func sessionToken(c *fiber.Ctx) string {
	if tok := c.Cookies(sessionCookie); tok != "" {
		return tok
	}
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (s *Server) setSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(auth.DefaultSessionTTL),
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (s *Server) authService() (*auth.Service, error) {
	if s.cfg.Auth == nil {
		return nil, fiber.NewError(fiber.StatusServiceUnavailable, "accounts are disabled")
	}
	return s.cfg.Auth, nil
}

func (s *Server) handleSignUp(c *fiber.Ctx) error {
	svc, err := s.authService()
	if err != nil {
		return err
	}
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	u, err := svc.SignUp(c.UserContext(), req.Username, req.Password, req.Email)
	switch {
	case errors.Is(err, auth.ErrMissingField):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	svc, err := s.authService()
	if err != nil {
		return err
	}
	var req credentials
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	token, u, err := svc.Login(c.UserContext(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return err
	}
	s.setSession(c, token)
	return c.JSON(fiber.Map{"token": token, "user": u})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if s.cfg.Auth != nil {
		if tok := sessionToken(c); tok != "" {
			s.cfg.Auth.Logout(c.UserContext(), tok)
		}
	}
	c.ClearCookie(sessionCookie)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGoogleStart(c *fiber.Ctx) error {
	if s.cfg.Google == nil || s.cfg.Auth == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "google sign-in is not configured")
	}
	state, err := s.issueState(c, stateCookie, "/auth")
	if err != nil {
		return err
	}
	return c.Redirect(s.cfg.Google.AuthURL(state), fiber.StatusTemporaryRedirect)
}

// issueState stores a fresh OAuth state value in a short-lived cookie
// scoped to path and returns it.
func (s *Server) issueState(c *fiber.Ctx, name, path string) (string, error) {
	state, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    state,
		Path:     path,
		Expires:  time.Now().Add(stateTTL),
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return state, nil
}

// clearState expires the state cookie on its path.
func (s *Server) clearState(c *fiber.Ctx, name, path string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Path:     path,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// checkState reports whether the redirect's state matches the cookie.
func checkState(c *fiber.Ctx, name string) error {
	if st := c.Query("state"); st == "" || st != c.Cookies(name) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid oauth state")
	}
	return nil
}

func (s *Server) handleGoogleCallback(c *fiber.Ctx) error {
	if s.cfg.Google == nil || s.cfg.Auth == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "google sign-in is not configured")
	}
	if err := checkState(c, stateCookie); err != nil {
		return err
	}
	code := c.Query("code")
	if code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing authorization code")
	}

	id, err := s.cfg.Google.Identify(c.UserContext(), code)
	if err != nil {
		s.logger.Warn("google sign-in failed", "error", err)
		return fiber.NewError(fiber.StatusUnauthorized, "google sign-in failed")
	}
	token, _, err := s.cfg.Auth.LoginIdentity(c.UserContext(), id)
	if err != nil {
		return err
	}
	s.clearState(c, stateCookie, "/auth")
	s.setSession(c, token)
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	u, _ := c.Locals(userKey).(*auth.User)
	if u == nil {
		return c.JSON(fiber.Map{"authenticated": false})
	}
	return c.JSON(fiber.Map{"authenticated": true, "user": u})
}
