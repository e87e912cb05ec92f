// Package artifacts stores screenshots the agent attaches to its messages.
// Payloads arrive base64-encoded; the store writes them to disk and hands
// back an opaque ref the dashboard can fetch from the static file route.
package artifacts

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const refPrefix = "/screenshots/"

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir is the directory artifacts are written to, for the static file route.
func (s *Store) Dir() string {
	return s.dir
}

// SaveBase64 decodes and writes a screenshot, returning its artifact ref.
// The prefix names the event that produced it (action kind, "manual",
// "error").
func (s *Store) SaveBase64(prefix, b64 string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode artifact payload: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.jpg", prefix, time.Now().Format("20060102_150405.000"))
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return refPrefix + filename, nil
}
