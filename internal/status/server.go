// Package status serves liveness and last-tick information over HTTP.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/zulandar/hourglass/internal/hourglass"
)

// Reporter exposes scheduler state. *hourglass.Poller implements it.
type Reporter interface {
	LastReport() (hourglass.TickReport, bool)
	Busy() bool
}

// StartOpts holds configuration for the status server.
type StartOpts struct {
	Reporter Reporter
	Addr     string
	Version  string
}

type statusResponse struct {
	Version  string                `json:"version"`
	Uptime   string                `json:"uptime"`
	Busy     bool                  `json:"busy"`
	LastTick *hourglass.TickReport `json:"last_tick"`
}

// NewRouter builds the gin engine with /healthz and /status.
func NewRouter(rep Reporter, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	started := time.Now()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", func(c *gin.Context) {
		resp := statusResponse{
			Version: version,
			Uptime:  time.Since(started).Round(time.Second).String(),
			Busy:    rep.Busy(),
		}
		if last, ok := rep.LastReport(); ok {
			resp.LastTick = &last
		}
		c.JSON(http.StatusOK, resp)
	})
	return router
}

// Start runs the status server until ctx is cancelled, then shuts down
// gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Reporter == nil {
		return fmt.Errorf("status: reporter is required")
	}
	if opts.Addr == "" {
		return fmt.Errorf("status: addr is required")
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts.Reporter, opts.Version),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", opts.Addr).Msg("status: listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}
