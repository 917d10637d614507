// CLAUDE:SUMMARY HTTP signalling: a page under test calls GET /takeScreenshot?id=<worker> to release the case waiting on that id.
// Package signal lets the page under test decide when a screenshot is
// taken. A case blocks in Hub.Wait until the page requests
// GET /takeScreenshot?id=<id>, or until the timeout expires.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/shotdiff/horosafe"
)

// ErrTimeout is returned by Wait when no signal arrives in time.
var ErrTimeout = errors.New("signal: timed out waiting for takeScreenshot")

// Hub pairs waiters and signals by id. A signal that arrives before its
// waiter is kept and consumed by the next Wait for that id.
type Hub struct {
	mu      sync.Mutex
	waiters map[string]chan struct{}
	logger  *slog.Logger
}

// NewHub returns an empty Hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{waiters: map[string]chan struct{}{}, logger: logger}
}

func (h *Hub) channel(id string) chan struct{} {
	ch, ok := h.waiters[id]
	if !ok {
		ch = make(chan struct{}, 1)
		h.waiters[id] = ch
	}
	return ch
}

// Wait blocks until Release(id), ctx is done, or timeout elapses.
func (h *Hub) Wait(ctx context.Context, id string, timeout time.Duration) error {
	h.mu.Lock()
	ch := h.channel(id)
	h.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: id %s after %s", ErrTimeout, id, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release wakes the waiter for id. It reports whether one was already
// pending; repeated releases before a Wait collapse into one.
func (h *Hub) Release(id string) bool {
	h.mu.Lock()
	ch := h.channel(id)
	h.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Router returns the chi router serving /takeScreenshot.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/takeScreenshot", h.handleTakeScreenshot)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// handleTakeScreenshot releases the waiter named by ?id=.
// GET /takeScreenshot?id=<id>
func (h *Hub) handleTakeScreenshot(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if err := horosafe.ValidateIdentifier(id); err != nil {
		h.logger.Warn("signal: bad takeScreenshot request", "id", id, "error", err)
		http.Error(w, `"id" query parameter is required`, http.StatusBadRequest)
		return
	}
	queued := h.Release(id)
	h.logger.Debug("signal: takeScreenshot", "id", id, "queued", queued)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"id": id, "queued": queued})
}

// Serve runs the router on addr until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	h.logger.Info("signal: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("signal: serve: %w", err)
	}
	return nil
}
