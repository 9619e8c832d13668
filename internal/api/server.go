// Package api exposes the turn-processing core over HTTP. Authentication and
// session plumbing belong to the gateway in front of this service.
package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/deskcore/pkg/models"
)

// TurnProcessor is the orchestrator contract the server exposes.
type TurnProcessor interface {
	Process(ctx context.Context, req models.TurnRequest) models.TurnResponse
}

// Server is the HTTP front of the dialogue core.
type Server struct {
	echo      *echo.Echo
	listen    string
	processor TurnProcessor
}

// NewServer builds the server on the given listen address.
func NewServer(listen string, processor TurnProcessor) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, listen: listen, processor: processor}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/turn", s.processTurn)
}

func (s *Server) processTurn(c echo.Context) error {
	var req models.TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	response := s.processor.Process(c.Request().Context(), req)
	return c.JSON(http.StatusOK, response)
}

// Start serves until an interrupt arrives, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		log.Info().Str("listen", s.listen).Msg("turn service listening")
		if err := s.echo.Start(s.listen); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
