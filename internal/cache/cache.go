// Package cache remembers which stored canvas a given upload produced so a
// repeated upload skips preprocessing.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dunamismax/tryonflow/internal/domain"
)

const KeyPrefix = "tryonflow:preprocess:"

// Cache maps an upload fingerprint to the artifact key of its canvas.
type Cache interface {
	Lookup(ctx context.Context, key string) (artifactKey string, ok bool, err error)
	Remember(ctx context.Context, key, artifactKey string) error
	Purge(ctx context.Context) (int, error)
}

// Key fingerprints an upload. Garment canvases depend on the category the
// caller passed, person canvases do not.
func Key(kind string, category domain.Category, data []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write(data)
	return KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Nop never hits.
type Nop struct{}

func (Nop) Lookup(context.Context, string) (string, bool, error) { return "", false, nil }
func (Nop) Remember(context.Context, string, string) error       { return nil }
func (Nop) Purge(context.Context) (int, error)                   { return 0, nil }
