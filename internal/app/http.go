package app

import (
	"context"
	"net/http"
	"time"

	"peerchat/pkg/api"
	"peerchat/pkg/logger"
	"peerchat/pkg/telemetry"
)

// startHTTP builds the inspection handler, starts the HTTP server in a
// goroutine and returns a channel that will carry any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	router := api.NewRouter(api.Deps{
		Composer: a.composer,
		Tracker:  a.tracker,
	})

	a.srv = &http.Server{
		Addr:              a.cfg.API.Addr(),
		Handler:           telemetry.Middleware(router),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("inspection_server_listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func (a *App) stopHTTP() {
	if a.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		logger.Error("inspection_server_shutdown_failed", "error", err)
	}
	a.srv = nil
}
