// Package store holds the in-memory sequence of canonical requests shown
// by the dashboard and mirrors it to a persistent snapshot slot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/observability"
)

// SnapshotKey names the persisted slot holding the JSON request array.
const SnapshotKey = "rescuecom_requests"

var (
	// ErrNotFound is returned when no request has the given id.
	ErrNotFound = errors.New("request not found")
	// ErrNoSnapshot is returned by a Snapshotter when the slot is empty.
	ErrNoSnapshot = errors.New("snapshot slot empty")
)

// Snapshotter persists the serialized request sequence under a key.
type Snapshotter interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
}

// Store is the single mutable collection of requests. It is safe for
// concurrent use. Readers always receive copies.
type Store struct {
	mu       sync.RWMutex
	requests []domain.Request
	selected string
	gen      uint64

	// snapMu orders snapshot writes. written is the generation last saved.
	snapMu  sync.Mutex
	written uint64

	snapshots Snapshotter
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an empty Store. snapshots may be nil to disable persistence.
func New(snapshots Snapshotter, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		requests:  []domain.Request{},
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
	}
}

// All returns the current sequence as a fresh slice the caller may sort.
func (s *Store) All() []domain.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.requests)
}

// Len returns the number of stored requests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.requests)
}

// Get returns the request with the given canonical id.
func (s *Store) Get(id string) (domain.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(id)
}

func (s *Store) find(id string) (domain.Request, error) {
	for _, r := range s.requests {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ReplaceAll installs records as the whole sequence and snapshots it.
func (s *Store) ReplaceAll(ctx context.Context, records []domain.Request) {
	installed := slices.Clone(records)
	if installed == nil {
		installed = []domain.Request{}
	}

	s.mu.Lock()
	s.requests = installed
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.snapshot(ctx, gen, installed)
}

// Prepend inserts record at index 0 and snapshots the result.
func (s *Store) Prepend(ctx context.Context, record domain.Request) {
	s.mu.Lock()
	next := make([]domain.Request, 0, len(s.requests)+1)
	next = append(next, record)
	next = append(next, s.requests...)
	s.requests = next
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.snapshot(ctx, gen, next)
}

// Select marks the request shown in the detail panel.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.find(id); err != nil {
		return err
	}
	s.selected = id
	return nil
}

// Selected returns the currently selected request, if it is still stored.
func (s *Store) Selected() (domain.Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return domain.Request{}, false
	}
	r, err := s.find(s.selected)
	if err != nil {
		return domain.Request{}, false
	}
	return r, true
}

// Restore loads the snapshot slot into the store without rewriting it.
// It returns the number of restored requests.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	data, err := s.snapshots.Load(ctx, SnapshotKey)
	if errors.Is(err, ErrNoSnapshot) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}

	var records []domain.Request
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	if records == nil {
		records = []domain.Request{}
	}

	s.mu.Lock()
	s.requests = records
	s.gen++
	s.mu.Unlock()

	s.recordSize(len(records))
	return len(records), nil
}

// snapshot writes the sequence installed at generation gen. Writes are
// serialized and a generation older than the last one written is dropped,
// so the slot never falls behind memory. The write is best-effort: a
// failure is logged and counted, never retried.
func (s *Store) snapshot(ctx context.Context, gen uint64, installed []domain.Request) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if gen < s.written {
		s.logger.Debug("stale snapshot skipped", "generation", gen, "written", s.written)
		return
	}
	s.written = gen

	s.recordSize(len(installed))
	if s.snapshots == nil {
		return
	}

	data, err := json.Marshal(installed)
	if err == nil {
		err = s.snapshots.Save(ctx, SnapshotKey, data)
	}
	if err != nil {
		s.logger.Error("snapshot write failed", "key", SnapshotKey, "records", len(installed), "error", err)
		s.countSnapshot("error")
		return
	}
	s.countSnapshot("success")
}

func (s *Store) recordSize(n int) {
	if s.metrics != nil {
		s.metrics.Records.Set(float64(n))
	}
}

func (s *Store) countSnapshot(outcome string) {
	if s.metrics != nil {
		s.metrics.SnapshotWrites.WithLabelValues(outcome).Inc()
	}
}
