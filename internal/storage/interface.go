package storage

import (
	"context"
	"errors"
	"io"
)

var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore keeps rendered contract documents addressed by key.
// Local filesystem today; object storage can implement the same interface.
type DocumentStore interface {
	// SaveFile stores the content read from reader under key, replacing any
	// previous content atomically.
	SaveFile(ctx context.Context, key string, reader io.Reader) error

	// ReadFile opens the document stored under key.
	ReadFile(ctx context.Context, key string) (io.ReadCloser, error)

	// FileExists checks if a document exists and returns its stored size
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)

	// DeleteFile removes a document; deleting a missing key is not an error
	DeleteFile(ctx context.Context, key string) error

	// DownloadURL returns the URL customers fetch the document from
	DownloadURL(key string) string
}
