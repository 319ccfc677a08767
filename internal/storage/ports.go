package storage

import (
	"context"
	"errors"
)

// ErrNoDocument is returned when the cache slot has never been written.
var ErrNoDocument = errors.New("no cached document")

// DocumentStore is a single-slot cache holding the last loaded export as JSON
// text. SaveDocument always replaces the previous value.
type DocumentStore interface {
	LoadDocument(ctx context.Context) ([]byte, error)
	SaveDocument(ctx context.Context, body []byte) error
	Close() error
}

// Pinger is implemented by stores backed by an external resource.
type Pinger interface {
	Ping(ctx context.Context) error
}
