package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"budsjett/internal/core"
	"budsjett/internal/storage"
)

// DefaultMaxDocumentBytes bounds how much of an uploaded file is read.
const DefaultMaxDocumentBytes = 10 << 20

// ErrDocumentTooLarge is returned when an upload exceeds the configured limit.
var ErrDocumentTooLarge = errors.New("export document too large")

// Notifier receives best-effort notice of every successful load.
type Notifier interface {
	NotifyLoaded(ctx context.Context, raw core.Raw) error
}

// LoaderService owns the current document. The slot is replaced wholesale
// on every successful load and read by every render.
type LoaderService struct {
	store    storage.DocumentStore
	notifier Notifier
	maxBytes int64

	// loadMu orders cache writes with the swap of current, so the cached
	// document is always the one being shown.
	loadMu sync.Mutex

	mu      sync.RWMutex
	current core.Raw
}

// NewLoaderService wires the cache store and an optional notifier. A
// non-positive maxBytes selects DefaultMaxDocumentBytes.
func NewLoaderService(store storage.DocumentStore, notifier Notifier, maxBytes int64) *LoaderService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	return &LoaderService{
		store:    store,
		notifier: notifier,
		maxBytes: maxBytes,
	}
}

// Startup restores the cached document, if any. Every failure is treated
// as "nothing cached".
func (s *LoaderService) Startup(ctx context.Context) {
	if s.store == nil {
		return
	}
	body, err := s.store.LoadDocument(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoDocument) {
			slog.WarnContext(ctx, "Reading cached document failed", "error", err)
		}
		return
	}
	raw, err := core.ParseDocument(body)
	if err != nil {
		slog.WarnContext(ctx, "Cached document is corrupt, ignoring", "error", err, "bytes", len(body))
		return
	}

	s.mu.Lock()
	s.current = raw
	s.mu.Unlock()

	slog.InfoContext(ctx, "Restored cached document", "bytes", len(raw))
}

// Load reads r to the end and parses it. On success the document is cached,
// announced and made current; on failure the current document is kept.
func (s *LoaderService) Load(ctx context.Context, r io.Reader) (core.Raw, error) {
	body, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, &core.ParseError{Err: fmt.Errorf("read upload: %w", err)}
	}
	if int64(len(body)) > s.maxBytes {
		return nil, &core.ParseError{Err: ErrDocumentTooLarge}
	}

	raw, err := core.ParseDocument(body)
	if err != nil {
		return nil, err
	}

	s.loadMu.Lock()
	if s.store != nil {
		if err := s.store.SaveDocument(ctx, raw); err != nil {
			slog.WarnContext(ctx, "Caching document failed", "error", err)
		}
	}
	s.mu.Lock()
	s.current = raw
	s.mu.Unlock()
	s.loadMu.Unlock()

	if s.notifier != nil {
		if err := s.notifier.NotifyLoaded(ctx, raw); err != nil {
			slog.WarnContext(ctx, "Load notification failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "Document loaded", "bytes", len(raw))
	return raw, nil
}

// Current returns the document to render, or nil before the first load.
func (s *LoaderService) Current() core.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Ping checks the cache store when it is backed by an external resource.
func (s *LoaderService) Ping(ctx context.Context) error {
	if p, ok := s.store.(storage.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the cache store.
func (s *LoaderService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close document store: %w", err)
	}
	return nil
}
