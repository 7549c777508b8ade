// ===================================
// File: internal/shutdown/shutdown.go
// ===================================
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// CloseFunc stops one service. It should return once the service has
// released its resources or ctx is done.
type CloseFunc func(ctx context.Context) error

type service struct {
	name  string
	close CloseFunc
}

// Handler closes registered services in reverse registration order, so a
// service is always stopped before the dependencies it was built on.
type Handler struct {
	logger *zap.Logger

	mu       sync.Mutex
	services []service
	done     bool
}

func New(logger *zap.Logger) *Handler {
	return &Handler{logger: logger.Named("shutdown")}
}

// Add registers a service.
func (h *Handler) Add(name string, fn CloseFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services = append(h.services, service{name: name, close: fn})
	h.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddCloser registers a close method that takes no context.
func (h *Handler) AddCloser(name string, fn func() error) {
	h.Add(name, func(context.Context) error { return fn() })
}

// Shutdown runs every close func once, LIFO. A service that does not finish
// before ctx is done is reported and skipped. Later calls are no-ops.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	services := h.services
	h.mu.Unlock()

	h.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		result := make(chan error, 1)
		go func() { result <- s.close(ctx) }()

		select {
		case err := <-result:
			if err != nil {
				h.logger.Error("Failed to shutdown service", zap.String("service", s.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
				continue
			}
			h.logger.Info("Service shutdown complete", zap.String("service", s.name))
		case <-ctx.Done():
			h.logger.Error("Shutdown timeout for service", zap.String("service", s.name))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, ctx.Err()))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	h.logger.Info("Graceful shutdown completed successfully")
	return nil
}
