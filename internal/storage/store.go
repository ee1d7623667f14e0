// Package storage persists uploads, prepared canvases and try-on results.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Key prefixes. Every artifact lives under exactly one of them.
const (
	PrefixUploads  = "uploads"
	PrefixGarments = "garments"
	PrefixPersons  = "persons"
	PrefixResults  = "results"
)

var (
	ErrNotFound   = errors.New("artifact not found")
	ErrInvalidKey = errors.New("invalid artifact key")
)

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// DeletePrefix removes every artifact whose key starts with prefix and
	// reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

func UploadKey(id, format string) string {
	return path.Join(PrefixUploads, sanitizeToken(id)+"."+sanitizeToken(format))
}

func GarmentKey(id string) string {
	return path.Join(PrefixGarments, sanitizeToken(id)+".png")
}

func PersonKey(id string) string {
	return path.Join(PrefixPersons, sanitizeToken(id)+".png")
}

func ResultKey(jobID string) string {
	return path.Join(PrefixResults, sanitizeToken(jobID)+".png")
}

// CleanKey validates a caller-supplied key: relative, slash separated,
// without dot segments and made only of [A-Za-z0-9._-] characters.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
		for _, r := range segment {
			if !tokenRune(r) && r != '.' {
				return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
			}
		}
	}
	return key, nil
}

func sanitizeToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		if tokenRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func tokenRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}
