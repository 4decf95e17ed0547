package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

const shutdownTimeout = 30 * time.Second

// HttpServer serves the run control surface. The caller owns the lifecycle:
// Run blocks until the given context is cancelled, then drains in-flight
// requests before returning.
type HttpServer struct {
	server *http.Server
	logger hclog.Logger
}

func NewHttpServer(logger hclog.Logger, defaultRouter http.Handler, port int) *HttpServer {
	return &HttpServer{
		server: &http.Server{
			Addr:     fmt.Sprintf(":%d", port),
			Handler:  defaultRouter,
			ErrorLog: logger.StandardLogger(&hclog.StandardLoggerOptions{}),
		},
		logger: logger,
	}
}

// Run serves until the context is cancelled. A listener failure is returned
// immediately; otherwise the return value is the shutdown result.
func (httpServer *HttpServer) Run(ctx context.Context) error {
	serveErrChan := make(chan error, 1)

	go func() {
		httpServer.logger.Info(fmt.Sprintf("Starting server on %s", httpServer.server.Addr))

		if err := httpServer.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrChan <- err
		}
	}()

	select {
	case err := <-serveErrChan:
		return err
	case <-ctx.Done():
	}

	httpServer.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.server.Shutdown(shutdownCtx)
}
