// Package blobstore holds in-memory binary blobs behind revocable local
// handles. A handle is a path the web view can load through the desktop
// asset server; revoking it frees the backing bytes and makes the path 404.
package blobstore

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// PathPrefix is the URL path under which handles are served.
	PathPrefix = "/blobs/"
	// MaxBlobSize is the largest payload a handle may hold (20MB).
	MaxBlobSize = 20 * 1024 * 1024
)

var (
	ErrNotFound      = errors.New("blob not found")
	ErrInvalidHandle = errors.New("invalid blob handle")
	ErrEmpty         = errors.New("empty blob")
	ErrTooLarge      = errors.New("blob exceeds maximum size")
)

type blob struct {
	data     []byte
	mimeType string
}

// Store provides thread-safe revocable handles.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]blob
	live  prometheus.Gauge
}

// New creates an empty store. live may be nil.
func New(live prometheus.Gauge) *Store {
	return &Store{
		blobs: make(map[string]blob),
		live:  live,
	}
}

// Mint stores data and returns a new handle for it.
func (s *Store) Mint(data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if len(data) > MaxBlobSize {
		return "", ErrTooLarge
	}

	id := uuid.New().String()
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	s.blobs[id] = blob{data: copied, mimeType: mimeType}
	s.observe()
	s.mu.Unlock()

	return PathPrefix + id, nil
}

// Revoke invalidates a handle. It reports whether the handle was live.
func (s *Store) Revoke(handle string) bool {
	id, err := parseHandle(handle)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return false
	}
	delete(s.blobs, id)
	s.observe()
	return true
}

// RevokeAll invalidates every live handle and returns how many were released.
func (s *Store) RevokeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.blobs)
	s.blobs = make(map[string]blob)
	s.observe()
	return n
}

// Bytes returns a copy of the payload behind a live handle.
func (s *Store) Bytes(handle string) ([]byte, string, error) {
	id, err := parseHandle(handle)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	b, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, "", ErrNotFound
	}

	data := make([]byte, len(b.data))
	copy(data, b.data)
	return data, b.mimeType, nil
}

// Live returns the number of live handles.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IsHandle reports whether reference has the shape of a handle minted here.
func IsHandle(reference string) bool {
	_, err := parseHandle(reference)
	return err == nil
}

// ServeHTTP serves live handles to the web view.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, mimeType, err := s.Bytes(r.URL.Path)
	switch {
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(data)
	}
}

// observe must be called with mu held.
func (s *Store) observe() {
	if s.live != nil {
		s.live.Set(float64(len(s.blobs)))
	}
}

func parseHandle(handle string) (string, error) {
	id, ok := strings.CutPrefix(handle, PathPrefix)
	if !ok {
		return "", ErrInvalidHandle
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidHandle
	}
	return id, nil
}
