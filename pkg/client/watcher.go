package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"atelier/interfaces/http/rest/dto"
)

// DefaultPollInterval bounds how stale a watched view can be.
const DefaultPollInterval = 2 * time.Second

// StatusFetcher is the part of Client a Watcher needs.
type StatusFetcher interface {
	Status(ctx context.Context, titleID string) (*dto.StatusResponse, error)
}

// Watcher polls one title at a time and feeds each result through a
// Reconciler.
type Watcher struct {
	fetcher  StatusFetcher
	store    Store
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(fetcher StatusFetcher, store Store, interval time.Duration, logger *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		fetcher:  fetcher,
		store:    store,
		interval: interval,
		logger:   logger.Named("watcher"),
	}
}

// Watch polls titleID until its batch settles or ctx ends. onUpdate first
// receives the restored view, then one view per successful poll. Poll
// errors are logged and retried on the next tick, except 401 and 404 which
// end the watch.
func (w *Watcher) Watch(ctx context.Context, titleID string, onUpdate func(View)) error {
	rec, err := NewReconciler(titleID, w.store)
	if err != nil {
		return err
	}
	return w.run(ctx, titleID, rec, onUpdate)
}

// WatchReconciler is Watch with a caller-owned Reconciler, for a caller that
// has just submitted a batch through it.
func (w *Watcher) WatchReconciler(ctx context.Context, titleID string, rec *Reconciler, onUpdate func(View)) error {
	return w.run(ctx, titleID, rec, onUpdate)
}

func (w *Watcher) run(ctx context.Context, titleID string, rec *Reconciler, onUpdate func(View)) error {
	if onUpdate == nil {
		onUpdate = func(View) {}
	}
	if rec.Pending() > 0 {
		onUpdate(rec.View())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		view, err := w.poll(ctx, titleID, rec)
		switch {
		case err == nil:
			onUpdate(view)
			if view.Done {
				return nil
			}
		case ctx.Err() != nil:
			return ctx.Err()
		case isFatal(err):
			return err
		default:
			w.logger.Warn("Poll failed", zap.String("title_id", titleID), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Watcher) poll(ctx context.Context, titleID string, rec *Reconciler) (View, error) {
	status, err := w.fetcher.Status(ctx, titleID)
	if err != nil {
		return View{}, err
	}
	return rec.Merge(status.Paintings)
}

// Switch cancels the watch started by the previous Switch, waits for it to
// exit and starts watching titleID in the background. The returned channel
// yields the watch's result once.
func (w *Watcher) Switch(ctx context.Context, titleID string, onUpdate func(View)) <-chan error {
	w.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	result := make(chan error, 1)

	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		result <- w.Watch(ctx, titleID, onUpdate)
	}()
	return result
}

// Stop cancels the background watch, if any, and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func isFatal(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusNotFound
}
