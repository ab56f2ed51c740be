// Package storage persists rendered invoice documents.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("document not found")

// DocumentStore writes documents and hands out a reference that is kept on
// the invoice row.
type DocumentStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (ref string, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
	// URL returns a direct download link, or "" when the document has to
	// be served through the API.
	URL(ctx context.Context, ref string) (string, error)
}
