// Package storage defines the blob store used for artifact payloads.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/loandocs/internal/crypto"
)

// BlobStore keeps artifact bytes under keys namespaced by order.
type BlobStore interface {
	// Put writes size bytes from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open streams the object; a missing key yields errs.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectKey returns "<orderID>/<unix-nanos>_<random hex><ext>". The random part keeps
// keys distinct for concurrent uploads to the same order within one clock tick.
func ObjectKey(orderID uuid.UUID, ext string, now time.Time) (string, error) {
	suffix, err := crypto.RandHex(8)
	if err != nil {
		return "", err
	}
	return path.Join(orderID.String(), fmt.Sprintf("%d_%s%s", now.UnixNano(), strings.ToLower(suffix), strings.ToLower(ext))), nil
}

// ValidKey reports whether key is a relative slash path without parent references.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "../") && key != ".."
}
