// Package api exposes the core operations to the external UI shell
// over a local HTTP boundary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/jiwoolab/mailvault/internal/app"
	"github.com/jiwoolab/mailvault/internal/auth"
	"github.com/jiwoolab/mailvault/internal/callback"
	"github.com/jiwoolab/mailvault/internal/model"
	"github.com/jiwoolab/mailvault/internal/store"
	appsync "github.com/jiwoolab/mailvault/internal/sync"
)

// Server is the UI-facing HTTP server.
type Server struct {
	echo *echo.Echo
	svc  *app.Service
	log  zerolog.Logger
}

// NewServer builds the server and registers its routes.
func NewServer(svc *app.Service, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, svc: svc, log: log}

	api := e.Group("/api")
	api.POST("/auth/url", s.getAuthURL)
	api.POST("/auth/callback", s.submitAuthCode)
	api.DELETE("/auth", s.signOut)
	api.GET("/auth/events", s.authEvents)
	api.POST("/sync", s.runSync)
	api.GET("/emails", s.listEmails)
	api.GET("/emails/:id", s.getEmail)
	api.GET("/health", s.checkHealth)

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) getAuthURL(c echo.Context) error {
	url, err := s.svc.GetAuthURL(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"url":     url,
	})
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) submitAuthCode(c echo.Context) error {
	var req submitCodeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "missing authorization code",
		})
	}

	if err := s.svc.SubmitAuthCode(c.Request().Context(), req.Code); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) signOut(c echo.Context) error {
	if err := s.svc.SignOut(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// authEvents streams one-shot auth notifications to the UI as
// server-sent events, so the shell learns about a captured code without
// polling.
func (s *Server) authEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	events, cancel := s.svc.Events().Subscribe()
	defer cancel()

	enc := func(ev app.Event) error {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(ev); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := enc(ev); err != nil {
				return nil
			}
		}
	}
}

type syncRequest struct {
	MaxResults int64 `json:"max_results"`
}

func (s *Server) runSync(c echo.Context) error {
	var req syncRequest
	_ = c.Bind(&req)

	result, err := s.svc.RunSync(c.Request().Context(), req.MaxResults)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"count":   result.Count,
		"emails":  result.Emails,
	})
}

func (s *Server) listEmails(c echo.Context) error {
	limit := queryInt(c, "limit", 100)
	offset := queryInt(c, "offset", 0)

	emails, err := s.svc.ListCached(c.Request().Context(), limit, offset)
	if err != nil {
		return s.fail(c, err)
	}
	if emails == nil {
		emails = []model.Email{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"emails":  emails,
	})
}

func (s *Server) getEmail(c echo.Context) error {
	email, err := s.svc.GetCached(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"email":   email,
	})
}

func (s *Server) checkHealth(c echo.Context) error {
	health, err := s.svc.CheckStoreHealth(c.Request().Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"count":   health.Count,
		"sample":  health.HasSample,
		"data":    health.Sample,
	})
}

// fail renders an error with the status implied by its kind, keeping
// the {success, error} envelope the UI expects.
func (s *Server) fail(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, map[string]any{
		"success": false,
		"error":   err.Error(),
	})
}

// statusFor maps the core error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		exchangeErr *auth.ExchangeError
		providerErr *appsync.ProviderError
		normErr     *appsync.NormalizationError
	)
	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, callback.ErrFlowInProgress):
		return http.StatusConflict
	case errors.Is(err, callback.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &exchangeErr):
		if exchangeErr.Kind == auth.ExchangeNetwork {
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	case errors.As(err, &normErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
