package worker

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPServerWorker wraps an http.Server as a Worker, grounded on the
// teacher's services.HTTPServerWorker: listen in a goroutine, shut down
// gracefully on context cancellation, bounded by a fixed drain timeout.
type HTTPServerWorker struct {
	server *http.Server
	logger *zap.Logger
}

func NewHTTPServerWorker(server *http.Server, logger *zap.Logger) *HTTPServerWorker {
	return &HTTPServerWorker{server: server, logger: logger}
}

func (w *HTTPServerWorker) Name() string { return "http-server" }

func (w *HTTPServerWorker) Run(ctx context.Context) error {
	w.logger.Info("http server listening", zap.String("addr", w.server.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := w.server.Shutdown(shutdownCtx); err != nil {
			w.logger.Error("error shutting down http server", zap.Error(err))
			return err
		}
		w.logger.Info("http server shut down")
		return nil

	case err := <-errChan:
		w.logger.Error("http server error", zap.Error(err))
		return err
	}
}
