// Package server assembles the HTTP API and its background workers.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/internal/profile"
	v1 "github.com/hrygo/nfintake/server/router/api/v1"
)

// BackgroundRunner is a worker started with the server and stopped on shutdown.
type BackgroundRunner interface {
	Run(ctx context.Context)
}

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	runners    []BackgroundRunner

	// runnerMu orders runner launch in Start against cancellation in Shutdown.
	runnerMu     sync.Mutex
	runnerCtx    context.Context
	runnerCancel context.CancelFunc
	runnerWG     sync.WaitGroup
}

// NewServer creates a Server exposing api. Runners start with Start.
func NewServer(profile *profile.Profile, api *v1.APIV1Service, runners ...BackgroundRunner) *Server {
	e := echo.New()
	e.Debug = profile.IsDev()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{profile.CORSOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
	}))
	// Multipart overhead on top of the largest accepted upload.
	e.Use(middleware.BodyLimit(strconv.FormatInt(profile.MaxUploadBytes+(1<<20), 10)))

	api.RegisterRoutes(e)

	runnerCtx, runnerCancel := context.WithCancel(context.Background())
	return &Server{
		Profile:      profile,
		echoServer:   e,
		runners:      runners,
		runnerCtx:    runnerCtx,
		runnerCancel: runnerCancel,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start launches the background runners and blocks serving HTTP until Shutdown.
// After Shutdown it starts nothing and returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.runnerMu.Lock()
	if s.runnerCtx.Err() != nil {
		s.runnerMu.Unlock()
		return nil
	}
	for _, r := range s.runners {
		s.runnerWG.Add(1)
		go func() {
			defer s.runnerWG.Done()
			r.Run(s.runnerCtx)
		}()
	}
	s.runnerMu.Unlock()

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("nfintake server started", "address", address, "mode", s.Profile.Mode, "driver", s.Profile.Driver)
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start server")
	}
	return nil
}

// Shutdown stops accepting requests, drains in-flight ones and stops the runners.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	s.runnerMu.Lock()
	s.runnerCancel()
	s.runnerMu.Unlock()
	done := make(chan struct{})
	go func() {
		s.runnerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("background runners did not stop in time")
	}

	slog.Info("server stopped properly")
}
